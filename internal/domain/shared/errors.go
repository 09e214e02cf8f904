// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every DomainError carries one of these so
// callers can classify failures with errors.Is without knowing which
// domain produced them.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	ErrUnauthorized = errors.New("unauthorized")
	ErrPermission   = errors.New("permission denied")

	ErrConfiguration = errors.New("configuration error")

	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timed out")
)

// DomainError ties a failure to the domain and operation it came
// from. Kind is one of the sentinels above; Err optionally carries
// the underlying cause.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap prefers the cause over the kind so wrapped backend errors
// stay reachable.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError creates a DomainError without an underlying cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError creates a DomainError around an underlying cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Progress domain errors
var (
	ErrUnknownActivity  = NewDomainError("progress", "RecordActivity", ErrInvalidInput, "unknown activity kind")
	ErrInvalidGoal      = NewDomainError("progress", "SetWeeklyGoals", ErrValueOutOfRange, "weekly goal must be positive")
	ErrImportRejected   = NewDomainError("progress", "Import", ErrInvalidFormat, "import payload failed validation")
	ErrLedgerNotLoaded  = NewDomainError("progress", "Load", ErrStorage, "learning data could not be loaded")
	ErrNegativeActivity = NewDomainError("progress", "RecordActivity", ErrNegativeValue, "activity amount cannot be negative")
)

// Drill domain errors
var (
	ErrDrillConfig       = NewDomainError("drill", "Configure", ErrValidation, "drill configuration out of range")
	ErrDrillPhase        = NewDomainError("drill", "Transition", ErrStateTransition, "operation not valid in current phase")
	ErrDrillNoSession    = NewDomainError("drill", "Lookup", ErrNotFound, "no active drill session")
	ErrWordPoolExhausted = NewDomainError("drill", "SelectWords", ErrConfiguration, "word catalog smaller than requested drill size")
)

// Navigation domain errors
var (
	ErrUnknownModule    = NewDomainError("navigation", "Navigate", ErrInvalidInput, "unknown module")
	ErrModuleForbidden  = NewDomainError("navigation", "Navigate", ErrPermission, "role may not enter this module")
	ErrNavigationVetoed = NewDomainError("navigation", "Navigate", ErrInvalidState, "navigation cancelled by interceptor")
)

// Auth domain errors
var (
	ErrInvalidCredentials = NewDomainError("auth", "Login", ErrUnauthorized, "invalid username or password")
	ErrSessionNotFound    = NewDomainError("auth", "Validate", ErrNotFound, "session not found")
	ErrSessionExpired     = NewDomainError("auth", "Validate", ErrExpired, "session expired")
)

// Word domain errors
var (
	ErrWordNotFound  = NewDomainError("word", "Find", ErrNotFound, "word not found")
	ErrEmptyCatalog  = NewDomainError("word", "Load", ErrConfiguration, "word catalog is empty")
	ErrImportFailed  = NewDomainError("word", "Import", ErrInvalidFormat, "word import failed")
	ErrDuplicateWord = NewDomainError("word", "Add", ErrAlreadyExists, "word already in catalog")
)

// Feynman domain errors
var (
	ErrExplanationTooShort = NewDomainError("feynman", "Submit", ErrValidation, "explanation must be at least 50 characters")
	ErrInvalidRating       = NewDomainError("feynman", "Rate", ErrValueOutOfRange, "rating must be between 1 and 5")
)

// Classification helpers. HTTP handlers map these onto status codes.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsValidation(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrInvalidInput, ErrEmptyValue,
		ErrNegativeValue, ErrValueOutOfRange, ErrInvalidFormat,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission) || errors.Is(err, ErrUnauthorized)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable reports whether the failure is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}
