package conversation

import (
	"errors"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

var (
	// ErrConversationNotFound is returned when a conversation lookup misses.
	ErrConversationNotFound = apperr.NotFound("conversation not found")

	// ErrConfigurationMissing is returned when the lead's business has no
	// profile or assistant configuration.
	ErrConfigurationMissing = apperr.NotFound("business configuration missing")

	// ErrGenerationFailure wraps any text-generation provider failure.
	ErrGenerationFailure = apperr.Upstream("response generation failed", nil)

	// ErrDispatchFailure is returned when a persisted reply could not be sent.
	ErrDispatchFailure = apperr.Upstream("reply dispatch failed", nil)

	// ErrJobNotFound indicates the requested job ID does not exist.
	ErrJobNotFound = apperr.NotFound("job not found")

	// errActiveExists is returned by stores when a second active
	// conversation would be created for a lead.
	errActiveExists = errors.New("conversation: active conversation already exists")
)
