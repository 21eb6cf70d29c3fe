package data

import apperrors "github.com/medforge/contentgen/internal/errors"

// Shared sentinel errors for data-layer repositories. Both classify as not_found.
var (
	// ErrJobNotFound is returned when a generation job is not found.
	ErrJobNotFound = apperrors.NotFoundf("job not found")
	// ErrTopicNotFound is returned when a topic is not found.
	ErrTopicNotFound = apperrors.NotFoundf("topic not found")
)
