package models

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	alphaSpaceRegex = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	indiaPhoneRegex = regexp.MustCompile(`^(\+91)?[6-9]\d{9}$`)
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	customValidations := map[string]validator.Func{
		"company_type":      validateCompanyType,
		"budget_range":      validateBudgetRange,
		"primary_concern":   validatePrimaryConcern,
		"key_status":        validateKeyStatus,
		"rotation_reason":   validateRotationReason,
		"system_event_type": validateSystemEventType,
		"alpha_space":       validateAlphaSpace,
		"india_phone":       validateIndiaPhone,
	}

	for tag, checker := range customValidations {
		if err := v.RegisterValidation(tag, checker); err != nil {
			return err
		}
	}

	return nil
}

func validateCompanyType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch CompanyTypeENUMType(fl.Field().String()) {
	case CompanyTypeFortune500:
		fallthrough
	case CompanyTypeIndustrial:
		fallthrough
	case CompanyTypeFamilyOffice:
		fallthrough
	case CompanyTypeHNI:
		fallthrough
	case CompanyTypeGovernment:
		fallthrough
	case CompanyTypeOther:
		return true
	}
	return false
}

func validateBudgetRange(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch BudgetRangeENUMType(fl.Field().String()) {
	case BudgetRange50LTo2Cr:
		fallthrough
	case BudgetRange2CrTo10Cr:
		fallthrough
	case BudgetRange10CrTo50Cr:
		fallthrough
	case BudgetRange50CrPlus:
		fallthrough
	case BudgetRangeCustom:
		return true
	}
	return false
}

func validatePrimaryConcern(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch PrimaryConcernENUMType(fl.Field().String()) {
	case PrimaryConcernLandDueDiligence:
		fallthrough
	case PrimaryConcernTSCMServices:
		fallthrough
	case PrimaryConcernFamilySecurity:
		fallthrough
	case PrimaryConcernRiskManagement:
		fallthrough
	case PrimaryConcernIntelligence:
		fallthrough
	case PrimaryConcernExecutiveProtection:
		fallthrough
	case PrimaryConcernIndustrialSecurity:
		fallthrough
	case PrimaryConcernOther:
		return true
	}
	return false
}

func validateKeyStatus(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch KeyStatusENUMType(fl.Field().String()) {
	case KeyStatusActive:
		fallthrough
	case KeyStatusExpired:
		fallthrough
	case KeyStatusCompromised:
		fallthrough
	case KeyStatusRetired:
		return true
	}
	return false
}

func validateRotationReason(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch RotationReasonENUMType(fl.Field().String()) {
	case RotationReasonScheduled:
		fallthrough
	case RotationReasonCompromise:
		fallthrough
	case RotationReasonExpiry:
		return true
	}
	return false
}

func validateSystemEventType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch SystemEventTypeENUMType(fl.Field().String()) {
	case SystemEventTypeKeyProvisioned:
		fallthrough
	case SystemEventTypeKeyRotated:
		fallthrough
	case SystemEventTypeKeyExpired:
		fallthrough
	case SystemEventTypeKeyCompromised:
		fallthrough
	case SystemEventTypeSubmissionStored:
		fallthrough
	case SystemEventTypeSubmissionsPurged:
		return true
	}
	return false
}

func validateAlphaSpace(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return alphaSpaceRegex.MatchString(fl.Field().String())
}

func validateIndiaPhone(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return indiaPhoneRegex.MatchString(fl.Field().String())
}
