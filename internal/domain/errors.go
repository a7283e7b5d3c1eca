// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable means the backing store cannot be reached.
	// Safe to retry with backoff; surfaced as HTTP 503.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDuplicateModule is returned when a module name is registered twice.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrInvalidResult marks a module result that cannot be persisted,
	// e.g. an empty subject. The result is dropped, never written.
	ErrInvalidResult = errors.New("invalid module result")

	// ErrFeatureKilled is returned when a killed feature is re-enabled.
	// A kill switch that can be silently re-armed is not a kill switch.
	ErrFeatureKilled = errors.New("feature killed for process lifetime")
)

// ValidationError is a field-level input rejection. It maps to a 4xx
// response and is never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
