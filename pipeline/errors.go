// Package pipeline - intake submission processing pipeline
package pipeline

import "github.com/riskfortress/intake/models"

// ErrorCodeENUMType pipeline rejection code ENUM value type
type ErrorCodeENUMType string

const (
	// ErrorCodeRateLimitExceeded the client exceeded its rate limit profile
	ErrorCodeRateLimitExceeded ErrorCodeENUMType = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeBotDetected the request user-agent matched a bot signature
	ErrorCodeBotDetected ErrorCodeENUMType = "BOT_DETECTED"
	// ErrorCodeInvalidJSON the request body is not valid JSON
	ErrorCodeInvalidJSON ErrorCodeENUMType = "INVALID_JSON"
	// ErrorCodeValidationError one or more submission fields are invalid
	ErrorCodeValidationError ErrorCodeENUMType = "VALIDATION_ERROR"
	// ErrorCodeInvalidEmailDomain the submission email is not corporate
	ErrorCodeInvalidEmailDomain ErrorCodeENUMType = "INVALID_EMAIL_DOMAIN"
	// ErrorCodeSubmissionRejected the submission matched spam heuristics
	ErrorCodeSubmissionRejected ErrorCodeENUMType = "SUBMISSION_REJECTED"
	// ErrorCodeBudgetMismatch the budget range is not allowed for the company type
	ErrorCodeBudgetMismatch ErrorCodeENUMType = "BUDGET_MISMATCH"
	// ErrorCodeConfigurationError the pipeline is misconfigured
	ErrorCodeConfigurationError ErrorCodeENUMType = "CONFIGURATION_ERROR"
	// ErrorCodeDecryptionFailed a stored envelope could not be opened
	ErrorCodeDecryptionFailed ErrorCodeENUMType = "DECRYPTION_FAILED"
	// ErrorCodeInternalError any other processing failure
	ErrorCodeInternalError ErrorCodeENUMType = "INTERNAL_ERROR"
)

// Error one pipeline rejection
//
// The message and attached detail are written for the submitter; internal
// failure causes stay in the logs.
type Error struct {
	// Code machine readable rejection code
	Code ErrorCodeENUMType `json:"code"`
	// Message human readable rejection message
	Message string `json:"message"`
	// FieldErrors violated validation constraints, when Code is
	// VALIDATION_ERROR or BUDGET_MISMATCH
	FieldErrors []models.FieldError `json:"fieldErrors,omitempty"`
	// Suggestions suggested corporate email formats, when Code is
	// INVALID_EMAIL_DOMAIN
	Suggestions []string `json:"suggestions,omitempty"`
	// RateLimit the limit decision, when Code is RATE_LIMIT_EXCEEDED
	RateLimit *models.RateLimitDecision `json:"-"`
}

// Error implement the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}
