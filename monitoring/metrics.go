// Package monitoring - Prometheus metrics for the intake pipeline
package monitoring

import (
	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SubmissionsProcessed total processed submissions by outcome. The outcome
	// label is either "accepted" or a pipeline rejection code.
	SubmissionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_submissions_processed_total",
			Help: "Total number of processed intake submissions by outcome",
		},
		[]string{"outcome"},
	)

	// ProcessingDuration end-to-end pipeline processing time
	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_processing_duration_seconds",
			Help:    "Duration of intake submission processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	// KeyRotations total key rotations by reason
	KeyRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_key_rotations_total",
			Help: "Total number of encryption key rotations by reason",
		},
		[]string{"reason"},
	)

	// SubmissionsPurged total submissions removed by the retention sweep
	SubmissionsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_submissions_purged_total",
			Help: "Total number of stored submissions purged by retention",
		},
	)
)

// InitMetrics register the pipeline metrics with the default registry
func InitMetrics() {
	for _, collector := range []prometheus.Collector{
		SubmissionsProcessed,
		ProcessingDuration,
		KeyRotations,
		SubmissionsPurged,
	} {
		if err := prometheus.Register(collector); err != nil {
			log.WithError(err).Error("Failed to register metric")
		}
	}
}
