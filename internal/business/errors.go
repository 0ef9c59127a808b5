package business

import "github.com/wolfman30/leadqual-platform/internal/apperr"

var (
	// ErrBusinessNotFound is returned when no business profile exists.
	ErrBusinessNotFound = apperr.NotFound("business not found")
	// ErrAssistantConfigNotFound is returned when a business has no assistant configured.
	ErrAssistantConfigNotFound = apperr.NotFound("assistant configuration not found")
)
