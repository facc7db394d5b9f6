package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/riskfortress/intake/classify"
	"github.com/riskfortress/intake/filter"
	"github.com/riskfortress/intake/keymgmt"
	"github.com/riskfortress/intake/models"
	"github.com/riskfortress/intake/ratelimit"
	"github.com/riskfortress/intake/sink"
	"github.com/riskfortress/intake/validation"
)

// payloadFormatVersion version stamped on the submission metadata
const payloadFormatVersion = "1.0"

// userAgentMaxLength user-agent length retained in the submission metadata
const userAgentMaxLength = 100

// rateLimitProfileName the limit profile applied to intake submissions
const rateLimitProfileName = "intake"

// Request one inbound intake request
type Request struct {
	// RawPayload the raw JSON request body
	RawPayload []byte
	// ClientIP the client IP the request arrived from
	ClientIP string
	// UserAgent the request user-agent header
	UserAgent string
	// Source the intake surface the request came through
	Source string
}

// Receipt acknowledgement of an accepted submission
type Receipt struct {
	// ReferenceID stable reference identifier for the submission
	ReferenceID string `json:"referenceId"`
	// ReceivedAt submission receipt timestamp
	ReceivedAt time.Time `json:"receivedAt"`
	// PurgeAt when the stored submission will be deleted
	PurgeAt time.Time `json:"purgeAt"`
	// RateLimit the limit state after this request
	RateLimit models.RateLimitDecision `json:"-"`
}

// Orchestrator runs inbound requests through the full intake pipeline
//
// Stage order: rate limit, bot check, JSON parse, honeypot, schema
// validation, corporate email policy, spam scan, encryption, durable storage.
// A request rejected at any stage never reaches the stages after it.
type Orchestrator interface {
	/*
		ProcessSubmission process one inbound intake request

			@param ctx context.Context - execution context
			@param request Request - the inbound request
			@returns the submission receipt. On rejection the error is a
			    `*pipeline.Error` carrying the rejection code.
	*/
	ProcessSubmission(ctx context.Context, request Request) (Receipt, error)
}

// orchestratorImpl implements Orchestrator
type orchestratorImpl struct {
	goutils.Component
	limiter   ratelimit.Limiter
	abuse     filter.AbuseFilter
	validator validation.RequestValidator
	keys      keymgmt.Manager
	storage   sink.DurableSink
	timeNow   func() time.Time
}

/*
NewOrchestrator define new intake pipeline orchestrator

	@param limiter ratelimit.Limiter - request rate limiter
	@param abuse filter.AbuseFilter - abuse heuristics
	@param validator validation.RequestValidator - schema validator
	@param keys keymgmt.Manager - encryption key manager
	@param storage sink.DurableSink - durable submission sink
	@returns orchestrator instance
*/
func NewOrchestrator(
	limiter ratelimit.Limiter,
	abuse filter.AbuseFilter,
	validator validation.RequestValidator,
	keys keymgmt.Manager,
	storage sink.DurableSink,
) (Orchestrator, error) {
	logTags := log.Fields{"module": "pipeline", "component": "orchestrator"}

	if limiter == nil || abuse == nil || validator == nil || keys == nil || storage == nil {
		return nil, fmt.Errorf("pipeline orchestrator missing a component")
	}

	return &orchestratorImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		limiter:   limiter,
		abuse:     abuse,
		validator: validator,
		keys:      keys,
		storage:   storage,
		timeNow:   time.Now,
	}, nil
}

// decoyReceipt plausible acknowledgement for a honeypot-triggering request.
// The payload is discarded; the submitter must not be able to tell.
func (o *orchestratorImpl) decoyReceipt(
	receivedAt time.Time, decision models.RateLimitDecision,
) (Receipt, error) {
	referenceID, err := sink.NewReferenceID(receivedAt)
	if err != nil {
		return Receipt{}, &Error{
			Code: ErrorCodeInternalError, Message: "submission processing failed",
		}
	}
	return Receipt{
		ReferenceID: referenceID,
		ReceivedAt:  receivedAt,
		PurgeAt:     receivedAt.Add(time.Hour * 72),
		RateLimit:   decision,
	}, nil
}

/*
ProcessSubmission process one inbound intake request

	@param ctx context.Context - execution context
	@param request Request - the inbound request
	@returns the submission receipt. On rejection the error is a
	    `*pipeline.Error` carrying the rejection code.
*/
func (o *orchestratorImpl) ProcessSubmission(
	ctx context.Context, request Request,
) (Receipt, error) {
	logTags := o.GetLogTagsForContext(ctx)
	startTime := o.timeNow().UTC()

	// Rate limit before any request parsing
	decision, err := o.limiter.Limit(ctx, rateLimitProfileName, request.ClientIP)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Rate limit check failed")
		return Receipt{}, &Error{
			Code: ErrorCodeInternalError, Message: "submission processing failed",
		}
	}
	if !decision.Allowed {
		return Receipt{}, &Error{
			Code:      ErrorCodeRateLimitExceeded,
			Message:   "too many requests, please try again later",
			RateLimit: &decision,
		}
	}

	// Automated clients are rejected outright
	if o.abuse.IsBot(request.UserAgent) {
		log.
			WithFields(logTags).
			WithField("user_agent", request.UserAgent).
			Info("Rejected automated client")
		return Receipt{}, &Error{
			Code: ErrorCodeBotDetected, Message: "automated submissions are not accepted",
		}
	}

	// Parse and validate the payload
	submission, fieldErrors, err := o.validator.ParseAndValidate(request.RawPayload)
	if err != nil {
		return Receipt{}, &Error{
			Code: ErrorCodeInvalidJSON, Message: "request body is not valid JSON",
		}
	}

	// A populated decoy field gets a plausible success with nothing stored
	if o.abuse.IsHoneypotTriggered(request.RawPayload) {
		log.WithFields(logTags).Info("Honeypot triggered, discarding submission")
		return o.decoyReceipt(startTime, decision)
	}

	if len(fieldErrors) > 0 {
		// A lone budget rule violation gets its own code
		if len(fieldErrors) == 1 && fieldErrors[0].Constraint == "budget_mismatch" {
			return Receipt{}, &Error{
				Code:        ErrorCodeBudgetMismatch,
				Message:     fieldErrors[0].Message,
				FieldErrors: fieldErrors,
			}
		}
		return Receipt{}, &Error{
			Code:        ErrorCodeValidationError,
			Message:     "submission contains invalid fields",
			FieldErrors: fieldErrors,
		}
	}

	// Corporate email policy
	if !classify.IsCorporate(submission.Email) {
		return Receipt{}, &Error{
			Code:        ErrorCodeInvalidEmailDomain,
			Message:     "please use your corporate email address",
			Suggestions: classify.SuggestAlternatives(submission.Email),
		}
	}

	// Spam content scan
	if o.abuse.IsSpam(submission) {
		log.WithFields(logTags).Info("Rejected spam submission")
		return Receipt{}, &Error{
			Code: ErrorCodeSubmissionRejected, Message: "submission could not be accepted",
		}
	}

	// Attach server-side metadata and seal the payload
	userAgent := request.UserAgent
	if len(userAgent) > userAgentMaxLength {
		userAgent = userAgent[:userAgentMaxLength]
	}
	sealed := models.SealedSubmission{
		IntakeSubmission: submission,
		Metadata: models.SubmissionMetadata{
			SubmittedAt:      startTime,
			IP:               request.ClientIP,
			UserAgent:        userAgent,
			ProcessingTimeMS: o.timeNow().UTC().Sub(startTime).Milliseconds(),
			Version:          payloadFormatVersion,
			Source:           request.Source,
		},
	}

	envelope, keyVersion, err := o.keys.SealPayload(ctx, sealed)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Submission encryption failed")
		return Receipt{}, &Error{
			Code: ErrorCodeInternalError, Message: "submission processing failed",
		}
	}

	serialized, err := json.Marshal(&envelope)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Envelope serialization failed")
		return Receipt{}, &Error{
			Code: ErrorCodeInternalError, Message: "submission processing failed",
		}
	}

	// Durably store the ciphertext
	receipt, err := o.storage.Store(ctx, keyVersion, string(serialized), request.ClientIP)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Submission storage failed")
		return Receipt{}, &Error{
			Code: ErrorCodeInternalError, Message: "submission processing failed",
		}
	}

	log.
		WithFields(logTags).
		WithField("reference_id", receipt.ID).
		WithField("key_version", keyVersion).
		Info("Accepted intake submission")

	return Receipt{
		ReferenceID: receipt.ID,
		ReceivedAt:  startTime,
		PurgeAt:     receipt.PurgeAt,
		RateLimit:   decision,
	}, nil
}
