// Package errors defines the unified error types surfaced by the dispatcher.
// Provider transport failures are mapped into these so that retry and
// failover logic can reason about them uniformly.
package errors

import (
	"errors"
	"fmt"

	"github.com/quayside/llmrelay/pkg/types"
)

// Sentinel errors surfaced by selection and registration.
var (
	// ErrNoHealthyProviders is returned when no registered provider passes
	// its health probe at selection time. It is never retried: retrying
	// against an empty registry cannot succeed.
	ErrNoHealthyProviders = errors.New("no healthy providers available")

	// ErrUnknownProvider is returned for a kind outside the closed enum.
	ErrUnknownProvider = errors.New("unknown provider kind")
)

// Error type labels, reported in logs and metrics.
const (
	TypeTransport      = "transport_error"
	TypeRateLimit      = "rate_limit_error"
	TypeTimeout        = "timeout_error"
	TypeInvalidRequest = "invalid_request_error"
	TypeConfig         = "config_error"
	TypeExhausted      = "retries_exhausted"
)

// DispatchError is a standardized failure from a provider dispatch.
type DispatchError struct {
	Type      string     `json:"type"`
	Provider  types.Kind `json:"provider"`
	Message   string     `json:"message"`
	Attempts  int        `json:"attempts,omitempty"`
	Retryable bool       `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("[%s] %s (provider=%s, attempts=%d)", e.Type, e.Message, e.Provider, e.Attempts)
	}
	return fmt.Sprintf("[%s] %s (provider=%s)", e.Type, e.Message, e.Provider)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *DispatchError) Unwrap() error { return e.cause }

// WithCause attaches the underlying error and returns e.
func (e *DispatchError) WithCause(err error) *DispatchError {
	e.cause = err
	return e
}

// NewTransportError creates a retryable network/transport failure.
func NewTransportError(provider types.Kind, message string) *DispatchError {
	return &DispatchError{Type: TypeTransport, Provider: provider, Message: message, Retryable: true}
}

// NewRateLimitError creates a retryable rate limit failure.
func NewRateLimitError(provider types.Kind, message string) *DispatchError {
	return &DispatchError{Type: TypeRateLimit, Provider: provider, Message: message, Retryable: true}
}

// NewTimeoutError creates a retryable timeout failure.
func NewTimeoutError(provider types.Kind, message string) *DispatchError {
	return &DispatchError{Type: TypeTimeout, Provider: provider, Message: message, Retryable: true}
}

// NewInvalidRequestError creates a non-retryable client-side failure.
func NewInvalidRequestError(provider types.Kind, message string) *DispatchError {
	return &DispatchError{Type: TypeInvalidRequest, Provider: provider, Message: message, Retryable: false}
}

// NewConfigError creates a non-retryable configuration failure, surfaced at
// registration or selection time.
func NewConfigError(provider types.Kind, message string) *DispatchError {
	return &DispatchError{Type: TypeConfig, Provider: provider, Message: message, Retryable: false}
}

// Exhausted wraps the final failure after all retry attempts, tagged with
// the provider label and attempt count.
func Exhausted(provider types.Kind, attempts int, cause error) *DispatchError {
	return &DispatchError{
		Type:     TypeExhausted,
		Provider: provider,
		Message:  fmt.Sprintf("all attempts failed: %v", cause),
		Attempts: attempts,
		cause:    cause,
	}
}

// IsRetryable reports whether err may succeed on a subsequent attempt.
// Unclassified errors default to retryable so transient transport faults
// from the stdlib HTTP client still get backoff.
func IsRetryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable
	}
	if errors.Is(err, ErrNoHealthyProviders) || errors.Is(err, ErrUnknownProvider) {
		return false
	}
	return true
}
