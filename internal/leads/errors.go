package leads

import "github.com/wolfman30/leadqual-platform/internal/apperr"

var (
	// ErrLeadNotFound is returned when no lead matches the lookup.
	ErrLeadNotFound = apperr.NotFound("lead not found")

	// ErrMissingBusiness is returned when a lead is created without a business scope.
	ErrMissingBusiness = apperr.Validation("business is required", map[string]string{"business_id": "required"})

	// ErrInvalidTransition is returned when a status change would move a lead backwards.
	ErrInvalidTransition = apperr.Validation("lead status transition not allowed", nil)
)
