package models_test

import (
	"testing"

	"github.com/riskfortress/intake/models"
	"github.com/stretchr/testify/assert"
)

// TestKeyStateTransitions verifies the key lifecycle state machine.
func TestKeyStateTransitions(t *testing.T) {
	assert := assert.New(t)

	// Case 1: ACTIVE can retire, expire, or be compromised
	key := models.KeyRecord{Status: models.KeyStatusActive}
	assert.Nil(key.ValidateNextState(models.KeyStatusRetired))
	assert.Nil(key.ValidateNextState(models.KeyStatusExpired))
	assert.Nil(key.ValidateNextState(models.KeyStatusCompromised))

	// Case 2: transitions are monotonic, nothing returns to ACTIVE
	key = models.KeyRecord{Status: models.KeyStatusRetired}
	assert.Error(key.ValidateNextState(models.KeyStatusActive))
	assert.Nil(key.ValidateNextState(models.KeyStatusCompromised))

	key = models.KeyRecord{Status: models.KeyStatusExpired}
	assert.Error(key.ValidateNextState(models.KeyStatusActive))
	assert.Error(key.ValidateNextState(models.KeyStatusRetired))
	assert.Nil(key.ValidateNextState(models.KeyStatusCompromised))

	// Case 3: COMPROMISED is terminal
	key = models.KeyRecord{Status: models.KeyStatusCompromised}
	for _, next := range []models.KeyStatusENUMType{
		models.KeyStatusActive,
		models.KeyStatusRetired,
		models.KeyStatusExpired,
		models.KeyStatusCompromised,
	} {
		assert.Error(key.ValidateNextState(next))
	}
}

// TestBudgetCompatibility verifies the budget / company type rule table.
func TestBudgetCompatibility(t *testing.T) {
	assert := assert.New(t)

	// The only restricted combination
	assert.False(models.BudgetCompatibleWithCompanyType(
		models.CompanyTypeHNI, models.BudgetRange50LTo2Cr,
	))

	// Everything else passes
	assert.True(models.BudgetCompatibleWithCompanyType(
		models.CompanyTypeHNI, models.BudgetRange2CrTo10Cr,
	))
	assert.True(models.BudgetCompatibleWithCompanyType(
		models.CompanyTypeFortune500, models.BudgetRange50LTo2Cr,
	))
	assert.True(models.BudgetCompatibleWithCompanyType(
		models.CompanyTypeOther, models.BudgetRangeCustom,
	))
}
