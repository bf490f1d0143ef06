package models

import (
	"errors"
	"fmt"
)

// FailureKind tags an ingestion failure so the orchestrator can pick a retry
// policy without string-matching error text.
type FailureKind string

const (
	FailNetwork   FailureKind = "network"             // retried with backoff
	FailRateLimit FailureKind = "rate_limit"          // retried after the provider's cool-off
	FailMalformed FailureKind = "malformed_payload"   // never retried, queued for review
	FailIdentity  FailureKind = "identity_resolution" // record rejected, never guessed
	FailStorage   FailureKind = "storage_unavailable" // cycle fails whole, next schedule retries
)

// SourceError wraps any failure on the ingestion path with its kind and
// origin source.
type SourceError struct {
	Kind   FailureKind
	Source Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func NewNetworkError(source Source, err error) error {
	return &SourceError{Kind: FailNetwork, Source: source, Err: err}
}

func NewRateLimitError(source Source, err error) error {
	return &SourceError{Kind: FailRateLimit, Source: source, Err: err}
}

func NewMalformedError(source Source, err error) error {
	return &SourceError{Kind: FailMalformed, Source: source, Err: err}
}

func NewIdentityError(source Source, err error) error {
	return &SourceError{Kind: FailIdentity, Source: source, Err: err}
}

func NewStorageError(source Source, err error) error {
	return &SourceError{Kind: FailStorage, Source: source, Err: err}
}

// KindOf extracts the failure kind, defaulting unknown errors to network so
// they stay on the retry path.
func KindOf(err error) FailureKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailNetwork
}

// IsTransient reports whether the orchestrator may retry the failure.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case FailNetwork, FailRateLimit:
		return true
	}
	return false
}

// ErrInsufficientHistory is the normal "not yet computable" analytics result.
// It is not a failure: callers translate it to NotAvailable, distinct from a
// computed zero.
var ErrInsufficientHistory = errors.New("insufficient history")

// ErrNotFound is returned by read paths when no entity matches the key.
var ErrNotFound = errors.New("not found")
