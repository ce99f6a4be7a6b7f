package services

import (
	"errors"
	"fmt"

	"github.com/stwalsh4118/roadwarden/internal/repository"
)

// Service-level errors. Handlers map each to a distinct client-facing kind.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidInput           = errors.New("invalid input")
	ErrIllegalStateTransition = errors.New("illegal state transition")
	ErrGateway                = errors.New("payment gateway error")
	ErrSignatureInvalid       = errors.New("invalid webhook signature")
	ErrTransient              = errors.New("temporary failure, retry the request")
)

// DetailedError is a service error carrying structured details for the
// client, such as plate validation errors or suggestions.
type DetailedError struct {
	Kind    error
	Details map[string]interface{}
	Message string
}

func (e *DetailedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DetailedError) Unwrap() error {
	return e.Kind
}

func invalidInput(message string, details map[string]interface{}) error {
	return &DetailedError{Kind: ErrInvalidInput, Message: message, Details: details}
}

// storeErr translates repository failures into service errors.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrUniqueViolation):
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	case errors.Is(err, repository.ErrTransient):
		return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isServiceErr reports whether err already carries a service-level kind.
func isServiceErr(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrConflict, ErrInvalidInput, ErrIllegalStateTransition,
		ErrGateway, ErrSignatureInvalid, ErrTransient,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// txErr passes service errors from a transaction through unchanged and
// translates everything else.
func txErr(op string, err error) error {
	if err == nil || isServiceErr(err) {
		return err
	}
	return storeErr(op, err)
}
