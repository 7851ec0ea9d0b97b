// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrMissingCredentials  = errors.New("missing required login credentials")
	ErrLoginDataMissing    = errors.New("login successful but jwtToken missing")
	ErrNoConnection        = errors.New("no API connection")
	ErrMissingParameters   = errors.New("missing required order parameters")
	ErrPriceRequired       = errors.New("price is required for LIMIT orders")
	ErrOrderIDRequired     = errors.New("order ID required to check status")
	ErrOrderNotFound       = errors.New("order not found in order book")
	ErrMissingLogoutParams = errors.New("logout requires token, client ID, and API key")
	ErrSymbolNotFound      = errors.New("symbol not found in stock directory")
)

// BrokerError represents a status=false response from the SmartAPI.
type BrokerError struct {
	Code    string
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("broker error: %s", e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(code, message string, err error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MalformedResponseError represents a broker response whose shape or type
// could not be interpreted. Kind distinguishes an unexpected envelope from an
// invalid response type so callers can report them separately.
type MalformedResponseError struct {
	Kind    string // "unexpected shape" or "invalid response type"
	Details string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed broker response (%s): %s", e.Kind, e.Details)
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(kind, details string) *MalformedResponseError {
	return &MalformedResponseError{Kind: kind, Details: details}
}

// ValidationError represents a validation error on user-supplied input.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
