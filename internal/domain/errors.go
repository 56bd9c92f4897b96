package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks seen-set store failures. A run cannot continue without dedup.
	ErrStoreUnavailable = errors.New("seen-set store unavailable")

	// ErrNotFound is returned when a fingerprint has no record.
	ErrNotFound = errors.New("record not found")
)

// TransientError wraps failures that may succeed when retried: timeouts, rate limits, 5xx.
type TransientError struct {
	Err error
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err or any error it wraps is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MalformedResponseError reports an external response that does not have the expected shape.
type MalformedResponseError struct {
	Source      string
	Fingerprint string
	Snippet     string
	Err         error
}

func (e *MalformedResponseError) Error() string {
	if e.Fingerprint != "" {
		return fmt.Sprintf("malformed %s response for %s: %v", e.Source, e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %v", e.Source, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ConfigError describes an invalid or missing configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config " + e.Field + ": " + e.Message
}

// StoreError wraps err so that it matches ErrStoreUnavailable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
