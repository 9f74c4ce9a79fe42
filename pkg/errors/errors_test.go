package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quayside/llmrelay/pkg/types"
)

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryable(NewTransportError(types.KindOpenAI, "conn reset")))
	assert.True(t, IsRetryable(NewRateLimitError(types.KindOpenAI, "slow down")))
	assert.True(t, IsRetryable(NewTimeoutError(types.KindOpenAI, "deadline")))
	assert.False(t, IsRetryable(NewInvalidRequestError(types.KindOpenAI, "bad prompt")))
	assert.False(t, IsRetryable(NewConfigError(types.KindOpenAI, "missing key")))

	// Sentinels are terminal, plain errors default retryable.
	assert.False(t, IsRetryable(ErrNoHealthyProviders))
	assert.True(t, IsRetryable(stderrors.New("something transient")))
}

func TestExhaustedWrapsCause(t *testing.T) {
	cause := NewTransportError(types.KindAnthropic, "conn reset")
	err := Exhausted(types.KindAnthropic, 3, cause)

	assert.Equal(t, 3, err.Attempts)
	assert.Equal(t, TypeExhausted, err.Type)
	assert.False(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestWithCauseChain(t *testing.T) {
	inner := stderrors.New("dial tcp: refused")
	err := NewTransportError(types.KindOpenAI, "request failed").WithCause(inner)
	assert.ErrorIs(t, err, inner)
}
