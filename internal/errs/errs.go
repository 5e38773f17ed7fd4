package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrStateConflict       = errors.New("state conflict")
	ErrNotFound            = errors.New("not found")
	ErrSimulationFailed    = errors.New("simulation failed")
)

// ValidationError is a schema or policy violation. Nothing is persisted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Field) == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientFundsError reports the exact shortfall in base units of Asset.
type InsufficientFundsError struct {
	Asset     string
	Requested uint64
	Allowed   uint64
	Shortfall uint64
	Reason    string
}

func (e *InsufficientFundsError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("insufficient %s: requested %d exceeds allowed %d by %d base units", e.Asset, e.Requested, e.Allowed, e.Shortfall)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrValidation }

// Upstream wraps a collaborator failure so callers can test it with errors.Is(err, ErrUpstreamUnavailable).
func Upstream(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, ErrUpstreamUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsUpstream(err error) bool { return errors.Is(err, ErrUpstreamUnavailable) }

func AsInsufficientFunds(err error) (*InsufficientFundsError, bool) {
	var target *InsufficientFundsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
