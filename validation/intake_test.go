package validation_test

import (
	"encoding/json"
	"testing"

	"github.com/apex/log"
	"github.com/riskfortress/intake/models"
	"github.com/riskfortress/intake/validation"
	"github.com/stretchr/testify/assert"
)

// validSubmission a submission satisfying every constraint
func validSubmission() models.IntakeSubmission {
	return models.IntakeSubmission{
		FirstName:      "Priya",
		LastName:       "Nair",
		Company:        "Acme Industries",
		JobTitle:       "Chief Security Officer",
		Email:          "priya.nair@acmeindustries.com",
		Phone:          "+919876543210",
		CompanyType:    models.CompanyTypeIndustrial,
		BudgetRange:    models.BudgetRange2CrTo10Cr,
		PrimaryConcern: models.PrimaryConcernRiskManagement,
		Message:        "We need a full facility security assessment this quarter.",
		AgreeToTerms:   true,
	}
}

// TestValidSubmission verifies a well-formed submission passes.
func TestValidSubmission(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	assert.Empty(uut.ValidateSubmission(validSubmission()))

	// Message is optional
	submission := validSubmission()
	submission.Message = ""
	assert.Empty(uut.ValidateSubmission(submission))
}

// TestCollectAllViolations verifies every violated constraint is reported at
// once, using JSON field names.
func TestCollectAllViolations(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	submission := validSubmission()
	submission.FirstName = "P"
	submission.LastName = "Nair123"
	submission.Phone = "12345"
	submission.AgreeToTerms = false

	fieldErrors := uut.ValidateSubmission(submission)

	violated := map[string]string{}
	for _, fieldError := range fieldErrors {
		violated[fieldError.Field] = fieldError.Constraint
	}
	assert.Equal("min", violated["firstName"])
	assert.Equal("alpha_space", violated["lastName"])
	assert.Equal("india_phone", violated["phone"])
	assert.Equal("eq", violated["agreeToTerms"])
}

// TestPhoneConstraint verifies the Indian mobile number rule.
func TestPhoneConstraint(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	// Case 1: ten digits starting 6-9, with or without +91
	for _, phone := range []string{"9876543210", "+919876543210", "6123456789"} {
		submission := validSubmission()
		submission.Phone = phone
		assert.Empty(uut.ValidateSubmission(submission), phone)
	}

	// Case 2: rejected shapes
	for _, phone := range []string{"1234567890", "98765", "+9198765432101", "98-76543210"} {
		submission := validSubmission()
		submission.Phone = phone
		assert.NotEmpty(uut.ValidateSubmission(submission), phone)
	}
}

// TestEnumConstraints verifies the ENUM field tags.
func TestEnumConstraints(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	submission := validSubmission()
	submission.CompanyType = "conglomerate"
	submission.BudgetRange = "1Cr"
	submission.PrimaryConcern = "piracy"

	violated := map[string]bool{}
	for _, fieldError := range uut.ValidateSubmission(submission) {
		violated[fieldError.Field] = true
	}
	assert.True(violated["companyType"])
	assert.True(violated["budgetRange"])
	assert.True(violated["primaryConcern"])
}

// TestBudgetRule verifies the cross-field budget / company type rule.
func TestBudgetRule(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	// Case 1: HNI with the lowest tier is the only restricted combination
	submission := validSubmission()
	submission.CompanyType = models.CompanyTypeHNI
	submission.BudgetRange = models.BudgetRange50LTo2Cr

	fieldErrors := uut.ValidateSubmission(submission)
	assert.Len(fieldErrors, 1)
	assert.Equal("budgetRange", fieldErrors[0].Field)
	assert.Equal("budget_mismatch", fieldErrors[0].Constraint)

	// Case 2: HNI with a higher tier passes
	submission.BudgetRange = models.BudgetRange2CrTo10Cr
	assert.Empty(uut.ValidateSubmission(submission))

	// Case 3: the lowest tier is fine for other company types
	submission = validSubmission()
	submission.BudgetRange = models.BudgetRange50LTo2Cr
	assert.Empty(uut.ValidateSubmission(submission))
}

// TestParseAndValidate verifies raw body parsing.
func TestParseAndValidate(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := validation.NewRequestValidator()
	assert.Nil(err)

	// Case 1: valid body round trips
	raw, err := json.Marshal(validSubmission())
	assert.Nil(err)
	submission, fieldErrors, err := uut.ParseAndValidate(raw)
	assert.Nil(err)
	assert.Empty(fieldErrors)
	assert.Equal("priya.nair@acmeindustries.com", submission.Email)

	// Case 2: malformed JSON surfaces as an error, not field violations
	_, _, err = uut.ParseAndValidate([]byte(`{not json`))
	assert.Error(err)

	// Case 3: a populated honeypot field is a violation
	var payload map[string]interface{}
	assert.Nil(json.Unmarshal(raw, &payload))
	payload["honeypot"] = "bot content"
	raw, err = json.Marshal(payload)
	assert.Nil(err)
	_, fieldErrors, err = uut.ParseAndValidate(raw)
	assert.Nil(err)
	assert.Len(fieldErrors, 1)
	assert.Equal("honeypot", fieldErrors[0].Field)
	assert.Equal("spam detected", fieldErrors[0].Message)
}
