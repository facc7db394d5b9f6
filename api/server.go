// Package api - HTTP surface of the intake service
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskfortress/intake/keymgmt"
	"github.com/riskfortress/intake/monitoring"
	"github.com/riskfortress/intake/pipeline"
)

// maxRequestBodyBytes request bodies larger than this are rejected
const maxRequestBodyBytes = 64 * 1024

// RouterParams HTTP router init parameters
type RouterParams struct {
	// Orchestrator the intake processing pipeline
	Orchestrator pipeline.Orchestrator
	// Keys the encryption key manager, used by the health endpoint
	Keys keymgmt.Manager
	// AllowedOrigin the single origin accepted for cross-origin requests
	AllowedOrigin string
}

// intakeHandler HTTP handlers for the intake surface
type intakeHandler struct {
	goutils.Component
	orchestrator  pipeline.Orchestrator
	keys          keymgmt.Manager
	allowedOrigin string
}

/*
NewRouter define the intake service HTTP router

	@param params RouterParams - router parameters
	@returns HTTP handler
*/
func NewRouter(params RouterParams) (http.Handler, error) {
	logTags := log.Fields{"module": "api", "component": "intake-handler"}

	if params.Orchestrator == nil || params.Keys == nil {
		return nil, fmt.Errorf("HTTP router missing a component")
	}

	handler := &intakeHandler{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		orchestrator:  params.Orchestrator,
		keys:          params.Keys,
		allowedOrigin: params.AllowedOrigin,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(handler.securityHeaders)

	router.Post("/intake", handler.handleIntake)
	router.Options("/intake", handler.handlePreflight)
	router.Get("/healthz", handler.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return router, nil
}

// securityHeaders apply the fixed response security headers
func (h *intakeHandler) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cache-Control", "no-store")
		if h.allowedOrigin != "" {
			headers.Set("Access-Control-Allow-Origin", h.allowedOrigin)
			headers.Set("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolve the client IP of a request
//
// Proxy headers take precedence over the socket peer address, with the
// leftmost X-Forwarded-For hop treated as the client.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON serialize a JSON response
func (h *intakeHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.WithError(err).WithFields(h.LogTags).Error("Failed to write response")
		}
	}
}

// applyRateLimitHeaders advertise the limit state on the response
func applyRateLimitHeaders(w http.ResponseWriter, decision pipeline.Receipt) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.RateLimit.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.RateLimit.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.RateLimit.Reset.Unix(), 10))
}

// errorResponse the rejection response body
type errorResponse struct {
	Success bool            `json:"success"`
	Error   *pipeline.Error `json:"error"`
}

// securityBlock protections advertised on an accepted submission
type securityBlock struct {
	Encryption string `json:"encryption"`
	Retention  string `json:"retention"`
	Compliance string `json:"compliance"`
}

// successResponse the acceptance response body
type successResponse struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	ReferenceID string        `json:"referenceId"`
	ReceivedAt  time.Time     `json:"receivedAt"`
	PurgeAt     time.Time     `json:"purgeAt"`
	NextSteps   []string      `json:"nextSteps"`
	Security    securityBlock `json:"security"`
}

// statusForCode map a pipeline rejection code to an HTTP status
func statusForCode(code pipeline.ErrorCodeENUMType) int {
	switch code {
	case pipeline.ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case pipeline.ErrorCodeBotDetected:
		return http.StatusForbidden
	case pipeline.ErrorCodeInvalidJSON,
		pipeline.ErrorCodeValidationError,
		pipeline.ErrorCodeInvalidEmailDomain,
		pipeline.ErrorCodeSubmissionRejected,
		pipeline.ErrorCodeBudgetMismatch:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleIntake process one intake submission request
func (h *intakeHandler) handleIntake(w http.ResponseWriter, r *http.Request) {
	logTags := h.GetLogTagsForContext(r.Context())
	startTime := time.Now()

	rawPayload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Failed to read request body")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: &pipeline.Error{
			Code: pipeline.ErrorCodeInternalError, Message: "submission processing failed",
		}})
		return
	}

	receipt, err := h.orchestrator.ProcessSubmission(r.Context(), pipeline.Request{
		RawPayload: rawPayload,
		ClientIP:   clientIP(r),
		UserAgent:  r.UserAgent(),
		Source:     "secure-intake",
	})
	monitoring.ProcessingDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		var rejection *pipeline.Error
		if !errors.As(err, &rejection) {
			rejection = &pipeline.Error{
				Code: pipeline.ErrorCodeInternalError, Message: "submission processing failed",
			}
		}
		monitoring.SubmissionsProcessed.WithLabelValues(string(rejection.Code)).Inc()

		status := statusForCode(rejection.Code)
		if rejection.RateLimit != nil {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rejection.RateLimit.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rejection.RateLimit.Remaining))
			w.Header().Set(
				"X-RateLimit-Reset", strconv.FormatInt(rejection.RateLimit.Reset.Unix(), 10),
			)
			retryAfter := int(time.Until(rejection.RateLimit.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}

		h.writeJSON(w, status, errorResponse{Error: rejection})
		return
	}

	monitoring.SubmissionsProcessed.WithLabelValues("accepted").Inc()
	applyRateLimitHeaders(w, receipt)
	h.writeJSON(w, http.StatusOK, successResponse{
		Success:     true,
		Message:     "Your inquiry has been received and encrypted",
		ReferenceID: receipt.ReferenceID,
		ReceivedAt:  receipt.ReceivedAt,
		PurgeAt:     receipt.PurgeAt,
		NextSteps: []string{
			"Our advisory team will review your inquiry",
			"Expect a response within two business days",
		},
		Security: securityBlock{
			Encryption: "AES-256-GCM",
			Retention:  "Submissions are stored encrypted and purged after 72 hours",
			Compliance: "Handled under our client confidentiality policy",
		},
	})
}

// handlePreflight answer CORS preflight requests for the intake endpoint
func (h *intakeHandler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	headers.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	headers.Set("Access-Control-Allow-Headers", "Content-Type")
	headers.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// healthResponse the health endpoint response body
type healthResponse struct {
	Status string `json:"status"`
	Keys   struct {
		TotalKeys       int `json:"totalKeys"`
		ActiveKeys      int `json:"activeKeys"`
		CompromisedKeys int `json:"compromisedKeys"`
	} `json:"keys"`
}

// handleHealth report service liveness and key registry health
func (h *intakeHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.keys.Health(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	response := healthResponse{Status: "healthy"}
	response.Keys.TotalKeys = health.TotalKeys
	response.Keys.ActiveKeys = health.ActiveKeys
	response.Keys.CompromisedKeys = health.CompromisedKeys

	status := http.StatusOK
	if health.ActiveKeys == 0 {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}
