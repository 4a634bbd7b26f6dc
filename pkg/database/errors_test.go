package database

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPQError_CheckConstraints(t *testing.T) {
	tests := []struct {
		constraint string
		target     error
	}{
		{"chk_account_reserved_within_on_hand", errors.ErrConsistency},
		{"chk_account_on_hand_non_negative", errors.ErrValidation},
		{"chk_lot_on_hand_non_negative", errors.ErrValidation},
		{"chk_account_reserved_non_negative", errors.ErrValidation},
		{"chk_account_location_present", errors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mapped := MapPQError(&pq.Error{Code: "23514", Constraint: tt.constraint})
			require.NotNil(t, mapped)
			assert.True(t, errors.Is(mapped, tt.target))
		})
	}
}

func TestMapPQError_UniqueViolation(t *testing.T) {
	mapped := MapPQError(&pq.Error{Code: "23505", Constraint: "uq_inventory_alerts_open_alert"})
	require.NotNil(t, mapped)
	assert.True(t, errors.Is(mapped, errors.ErrConflict))
	assert.Contains(t, mapped.Message, "open alert")

	mapped = MapPQError(&pq.Error{Code: "23505", Constraint: "uq_inventory_accounts_account_key"})
	require.NotNil(t, mapped)
	assert.Contains(t, mapped.Message, "inventory account")
}

func TestMapPQError_NotAPQError(t *testing.T) {
	assert.Nil(t, MapPQError(fmt.Errorf("plain error")))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "uq_inventory_alerts_open_alert"}

	assert.True(t, IsUniqueViolation(err, "uq_inventory_alerts_open_alert"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "uq_inventory_accounts_account_key"))
	assert.False(t, IsUniqueViolation(fmt.Errorf("plain error"), ""))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
}
