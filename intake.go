// Package intake - encrypted client intake submission pipeline
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/encryption"
	"github.com/riskfortress/intake/filter"
	"github.com/riskfortress/intake/keymgmt"
	"github.com/riskfortress/intake/pipeline"
	"github.com/riskfortress/intake/ratelimit"
	"github.com/riskfortress/intake/sink"
	"github.com/riskfortress/intake/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ServiceParams intake service init parameters
type ServiceParams struct {
	// DBDialector GORM dialector for the persistence layer
	DBDialector gorm.Dialector
	// DBLogLevel SQL log level
	DBLogLevel logger.LogLevel
	// EncryptionSecret the provisioned encryption secret. Required.
	EncryptionSecret string
	// KeyLifetime key validity window. If zero, use the 90 day default.
	KeyLifetime time.Duration
	// SubmissionRetention stored submission retention. If zero, use the 72
	// hour default.
	SubmissionRetention time.Duration
	// RedisClient optional shared Redis for rate limit counters. When nil,
	// counters are process-local.
	RedisClient *redis.Client
}

// Service the assembled intake service
type Service struct {
	// Pipeline the submission processing pipeline
	Pipeline pipeline.Orchestrator
	// Keys the encryption key manager
	Keys keymgmt.Manager
	// Sink the durable submission sink
	Sink sink.DurableSink
	// Persistence the persistence layer client
	Persistence db.Client
}

/*
NewService initialize the intake service.

Wires the rate limiter, abuse filters, schema validator, key manager, and
durable sink into one submission pipeline backed by a SQL database.

	@param ctx context.Context - execution context
	@param params ServiceParams - service parameters
	@returns assembled service
*/
func NewService(ctx context.Context, params ServiceParams) (*Service, error) {
	// Prepare persistence
	persistence, err := db.NewConnection(params.DBDialector, params.DBLogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized persistence client [%w]", err)
	}

	// Prepare encryption engine and key manager
	engine, err := encryption.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialized encryption engine [%w]", err)
	}
	keys, err := keymgmt.NewManager(
		ctx, engine, persistence, params.EncryptionSecret, params.KeyLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized key manager [%w]", err)
	}

	// Prepare rate limiter
	var counters ratelimit.CounterStore
	if params.RedisClient != nil {
		counters = ratelimit.NewRedisCounterStore(params.RedisClient)
	} else {
		counters = ratelimit.NewMemoryCounterStore()
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(counters, ratelimit.DefaultProfiles())
	if err != nil {
		return nil, fmt.Errorf("failed to initialized rate limiter [%w]", err)
	}

	// Prepare validation and abuse filters
	requestValidator, err := validation.NewRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialized request validator [%w]", err)
	}
	abuse := filter.NewAbuseFilter(filter.AbuseFilterParams{})

	// Prepare durable sink
	storage, err := sink.NewDurableSink(persistence, params.SubmissionRetention)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized durable sink [%w]", err)
	}

	orchestrator, err := pipeline.NewOrchestrator(
		limiter, abuse, requestValidator, keys, storage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialized intake pipeline [%w]", err)
	}

	return &Service{
		Pipeline:    orchestrator,
		Keys:        keys,
		Sink:        storage,
		Persistence: persistence,
	}, nil
}
