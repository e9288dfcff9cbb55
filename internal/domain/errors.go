package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a summarization provider failure. All kinds are
// internal to the fallback chain and never surface to callers.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureTransient   FailureKind = "transient"
	FailureUnusable    FailureKind = "unusable"
)

// ProviderError wraps a provider failure with its classification and an
// optional retry-after hint taken from the provider's response.
type ProviderError struct {
	Provider   string
	Kind       FailureKind
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ClassifyFailure extracts the failure kind from an error, defaulting to
// transient for anything unclassified (network faults, timeouts).
func ClassifyFailure(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureTransient
}
