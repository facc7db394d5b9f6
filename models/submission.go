// Package models - system data models
package models

import "time"

// CompanyTypeENUMType prospective client company type ENUM value type
type CompanyTypeENUMType string

const (
	// CompanyTypeFortune500 fortune-500 scale corporate client
	CompanyTypeFortune500 CompanyTypeENUMType = "fortune500"
	// CompanyTypeIndustrial industrial / manufacturing client
	CompanyTypeIndustrial CompanyTypeENUMType = "industrial"
	// CompanyTypeFamilyOffice family office client
	CompanyTypeFamilyOffice CompanyTypeENUMType = "familyOffice"
	// CompanyTypeHNI high-net-worth individual client
	CompanyTypeHNI CompanyTypeENUMType = "hni"
	// CompanyTypeGovernment government client
	CompanyTypeGovernment CompanyTypeENUMType = "government"
	// CompanyTypeOther any other client type
	CompanyTypeOther CompanyTypeENUMType = "other"
)

// BudgetRangeENUMType engagement budget range ENUM value type
type BudgetRangeENUMType string

const (
	// BudgetRange50LTo2Cr lowest budget tier
	BudgetRange50LTo2Cr BudgetRangeENUMType = "50L-2Cr"
	// BudgetRange2CrTo10Cr mid budget tier
	BudgetRange2CrTo10Cr BudgetRangeENUMType = "2Cr-10Cr"
	// BudgetRange10CrTo50Cr upper budget tier
	BudgetRange10CrTo50Cr BudgetRangeENUMType = "10Cr-50Cr"
	// BudgetRange50CrPlus top budget tier
	BudgetRange50CrPlus BudgetRangeENUMType = "50Cr+"
	// BudgetRangeCustom negotiated budget
	BudgetRangeCustom BudgetRangeENUMType = "custom"
)

// PrimaryConcernENUMType primary security concern ENUM value type
type PrimaryConcernENUMType string

const (
	// PrimaryConcernLandDueDiligence land due diligence engagements
	PrimaryConcernLandDueDiligence PrimaryConcernENUMType = "landDueDiligence"
	// PrimaryConcernTSCMServices technical surveillance counter-measures
	PrimaryConcernTSCMServices PrimaryConcernENUMType = "tscmServices"
	// PrimaryConcernFamilySecurity family security engagements
	PrimaryConcernFamilySecurity PrimaryConcernENUMType = "familySecurity"
	// PrimaryConcernRiskManagement risk management engagements
	PrimaryConcernRiskManagement PrimaryConcernENUMType = "riskManagement"
	// PrimaryConcernIntelligence intelligence engagements
	PrimaryConcernIntelligence PrimaryConcernENUMType = "intelligence"
	// PrimaryConcernExecutiveProtection executive protection engagements
	PrimaryConcernExecutiveProtection PrimaryConcernENUMType = "executiveProtection"
	// PrimaryConcernIndustrialSecurity industrial security engagements
	PrimaryConcernIndustrialSecurity PrimaryConcernENUMType = "industrialSecurity"
	// PrimaryConcernOther any other concern
	PrimaryConcernOther PrimaryConcernENUMType = "other"
)

// IntakeSubmission the validated client intake payload
//
// Built from untrusted input, never mutated after validation, and discarded
// once encrypted.
type IntakeSubmission struct {
	// FirstName submitter first name
	FirstName string `json:"firstName" validate:"required,min=2,max=50,alpha_space"`
	// LastName submitter last name
	LastName string `json:"lastName" validate:"required,min=2,max=50,alpha_space"`

	// Company submitter company name
	Company string `json:"company" validate:"required,min=2,max=100"`
	// JobTitle submitter job title
	JobTitle string `json:"jobTitle" validate:"required,min=2,max=100"`

	// Email submitter corporate email address
	Email string `json:"email" validate:"required,email"`
	// Phone submitter phone number
	Phone string `json:"phone" validate:"required,india_phone"`

	// CompanyType prospective client company type
	CompanyType CompanyTypeENUMType `json:"companyType" validate:"required,company_type"`
	// BudgetRange engagement budget range
	BudgetRange BudgetRangeENUMType `json:"budgetRange" validate:"required,budget_range"`
	// PrimaryConcern primary security concern
	PrimaryConcern PrimaryConcernENUMType `json:"primaryConcern" validate:"required,primary_concern"`

	// Message free-text engagement details
	Message string `json:"message,omitempty" validate:"omitempty,min=20,max=2000"`

	// AgreeToTerms terms-of-engagement agreement flag
	AgreeToTerms bool `json:"agreeToTerms" validate:"eq=true"`

	// Honeypot decoy field; a human-filled form never populates it
	Honeypot string `json:"honeypot,omitempty" validate:"omitempty,max=0"`
}

// BudgetCompatibleWithCompanyType verify the budget range is allowed for the
// company type.
//
// Only one restricted combination is documented: HNI clients may not select
// the lowest budget tier.
func BudgetCompatibleWithCompanyType(
	companyType CompanyTypeENUMType, budgetRange BudgetRangeENUMType,
) bool {
	if companyType == CompanyTypeHNI && budgetRange == BudgetRange50LTo2Cr {
		return false
	}
	return true
}

// SubmissionMetadata server-side metadata attached to the payload before
// encryption
type SubmissionMetadata struct {
	// SubmittedAt submission receipt timestamp
	SubmittedAt time.Time `json:"submittedAt" validate:"required"`
	// IP client IP the submission arrived from
	IP string `json:"ip" validate:"required"`
	// UserAgent client user-agent, truncated to 100 characters
	UserAgent string `json:"userAgent" validate:"max=100"`
	// ProcessingTimeMS pipeline processing time in milliseconds
	ProcessingTimeMS int64 `json:"processingTime"`
	// Version payload format version
	Version string `json:"version" validate:"required"`
	// Source the intake surface the submission came through
	Source string `json:"source,omitempty"`
}

// SealedSubmission the full plaintext handed to the encryption engine
type SealedSubmission struct {
	IntakeSubmission
	// Metadata server-side submission metadata
	Metadata SubmissionMetadata `json:"metadata"`
}

// FieldError one violated validation constraint
type FieldError struct {
	// Field the JSON field path of the violating value
	Field string `json:"field"`
	// Constraint the violated constraint tag
	Constraint string `json:"constraint"`
	// Message human readable description of the violation
	Message string `json:"message"`
}

// RateLimitDecision outcome of one rate limit check
type RateLimitDecision struct {
	// Allowed whether the request is within the profile ceiling
	Allowed bool `json:"allowed"`
	// Limit the profile request ceiling
	Limit int `json:"limit"`
	// Remaining requests left within the current window
	Remaining int `json:"remaining"`
	// Reset when the current window expires
	Reset time.Time `json:"reset"`
}
