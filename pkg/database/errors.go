package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/rsm/retail-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "reserved_within_on_hand"):
		return errors.Consistency("reserved quantity would exceed on-hand quantity")

	case strings.Contains(constraint, "on_hand_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "on-hand quantity must not go negative",
		})

	case strings.Contains(constraint, "reserved_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "reserved quantity must not go negative",
		})

	case strings.Contains(constraint, "location_present"):
		return errors.Validation(map[string]string{
			"location": "either branch_id or warehouse_id must be set",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "open_alert"):
		return "an open alert already exists for this product and location"
	case strings.Contains(constraint, "account_key"):
		return "an inventory account already exists for this product and location"
	default:
		return "a record with these values already exists"
	}
}
