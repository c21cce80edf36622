// Package clinicerr defines the error taxonomy shared by the clinical
// pipeline: validation and not-found errors map to 4xx responses, capability
// errors mark a failed external call (STT or generation), and persistence
// errors are kept distinct so callers can retry just the write while keeping
// already-computed AI output.
package clinicerr

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a referenced consultation or patient does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CapabilityError wraps a failed external capability call. Stage identifies
// which pipeline stage (or adapter) was running, so operators can tell
// "prescription extraction failed" apart from a transcription outage.
type CapabilityError struct {
	Stage string
	Err   error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a store write failure. It is surfaced distinctly
// from capability errors: a cascade result that failed only to persist is
// still returned to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MalformedResponseError records an unparseable structured response from a
// generation capability. Raw keeps the payload for diagnosis; control flow
// treats it like any capability failure.
type MalformedResponseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned malformed response: %v", e.Stage, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is caller input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCapability reports whether err came from an external capability call.
func IsCapability(err error) bool {
	var ce *CapabilityError
	var me *MalformedResponseError
	return errors.As(err, &ce) || errors.As(err, &me)
}

// IsPersistence reports whether err is a store write failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
