package model

import (
	"errors"
	"fmt"
)

// Engine-level sentinel errors.
var (
	ErrNoRouteFound          = errors.New("no route found")
	ErrQuoteNotFound         = errors.New("quote not found")
	ErrQuoteExpired          = errors.New("quote expired")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrNotCancellable        = errors.New("transaction no longer cancellable")
)

// ValidationError rejects a malformed RouteRequest before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid route request: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderErrorKind classifies adapter failures for the aggregator.
type ProviderErrorKind string

const (
	ProviderTimeout          ProviderErrorKind = "timeout"
	ProviderUnsupportedRoute ProviderErrorKind = "unsupported_route"
	ProviderFailure          ProviderErrorKind = "failure"
)

// ProviderError scopes a failure to a single provider adapter.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderTimeout wraps a timeout from one adapter.
func NewProviderTimeout(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ProviderTimeout, Err: err}
}

// NewProviderUnsupported marks a route not served by the provider.
func NewProviderUnsupported(provider string) error {
	return &ProviderError{Provider: provider, Kind: ProviderUnsupportedRoute}
}

// NewProviderFailure wraps a hard adapter failure.
func NewProviderFailure(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: ProviderFailure, Err: err}
}

// ProviderErrKind extracts the kind from err, or "" if err is not a ProviderError.
func ProviderErrKind(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Failure reasons recorded on transactions entering FAILED/REFUNDED.
const (
	ReasonOnChainRevert       = "on_chain_revert"
	ReasonConfirmationTimeout = "confirmation_timeout"
	ReasonProviderError       = "provider_error"
	ReasonCancelled           = "cancelled"
	ReasonRefunded            = "refunded"
)
