// Package validation - structural and business-rule validation of intake
// payloads
package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/riskfortress/intake/models"
)

// RequestValidator schema validation of raw intake request bodies
//
// Validation is collect-all, not fail-fast: every violated constraint is
// reported so the caller can surface all problems at once.
type RequestValidator interface {
	/*
		ParseAndValidate parse a raw JSON body into a submission and validate it

			@param raw []byte - the raw JSON request body
			@returns the parsed submission, and all violated constraints
	*/
	ParseAndValidate(raw []byte) (models.IntakeSubmission, []models.FieldError, error)

	/*
		ValidateSubmission validate an already-parsed submission

			@param submission models.IntakeSubmission - the submission
			@returns all violated constraints
	*/
	ValidateSubmission(submission models.IntakeSubmission) []models.FieldError
}

// requestValidator implements RequestValidator
type requestValidator struct {
	goutils.Component
	validate *validator.Validate
}

/*
NewRequestValidator define new intake request validator

	@returns validator instance
*/
func NewRequestValidator() (RequestValidator, error) {
	logTags := log.Fields{"module": "validation", "component": "request-validator"}

	core := validator.New()
	if err := models.RegisterWithValidator(core); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	// Report JSON field names rather than Go struct field names
	core.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	core.RegisterStructValidation(validateBudgetRule, models.IntakeSubmission{})

	return &requestValidator{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		validate: core,
	}, nil
}

// validateBudgetRule cross-field budget / company type compatibility check
func validateBudgetRule(sl validator.StructLevel) {
	submission := sl.Current().Interface().(models.IntakeSubmission)
	if !models.BudgetCompatibleWithCompanyType(submission.CompanyType, submission.BudgetRange) {
		sl.ReportError(
			submission.BudgetRange, "budgetRange", "BudgetRange", "budget_mismatch", "",
		)
	}
}

/*
ParseAndValidate parse a raw JSON body into a submission and validate it

	@param raw []byte - the raw JSON request body
	@returns the parsed submission, and all violated constraints
*/
func (v *requestValidator) ParseAndValidate(
	raw []byte,
) (models.IntakeSubmission, []models.FieldError, error) {
	var submission models.IntakeSubmission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return models.IntakeSubmission{}, nil, fmt.Errorf("malformed JSON payload [%w]", err)
	}

	return submission, v.ValidateSubmission(submission), nil
}

/*
ValidateSubmission validate an already-parsed submission

	@param submission models.IntakeSubmission - the submission
	@returns all violated constraints
*/
func (v *requestValidator) ValidateSubmission(
	submission models.IntakeSubmission,
) []models.FieldError {
	err := v.validate.Struct(&submission)
	if err == nil {
		return nil
	}

	violations, ok := err.(validator.ValidationErrors)
	if !ok {
		return []models.FieldError{{
			Field: "", Constraint: "invalid", Message: "submission could not be validated",
		}}
	}

	fieldErrors := make([]models.FieldError, 0, len(violations))
	for _, violation := range violations {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field:      violation.Field(),
			Constraint: violation.Tag(),
			Message:    messageForViolation(violation),
		})
	}
	return fieldErrors
}

// messageForViolation human readable message for one violated constraint
func messageForViolation(violation validator.FieldError) string {
	switch violation.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", violation.Field())
	case "min":
		return fmt.Sprintf(
			"%s must be at least %s characters", violation.Field(), violation.Param(),
		)
	case "max":
		if violation.Field() == "honeypot" {
			return "spam detected"
		}
		return fmt.Sprintf(
			"%s must be less than %s characters", violation.Field(), violation.Param(),
		)
	case "alpha_space":
		return fmt.Sprintf("%s can only contain letters", violation.Field())
	case "email":
		return "invalid email address"
	case "india_phone":
		return "invalid Indian phone number"
	case "company_type":
		return "invalid company type"
	case "budget_range":
		return "invalid budget range"
	case "primary_concern":
		return "invalid concern selection"
	case "eq":
		if violation.Field() == "agreeToTerms" {
			return "you must agree to the terms"
		}
	case "budget_mismatch":
		return "budget range does not match client type"
	}
	return fmt.Sprintf("%s is invalid", violation.Field())
}
