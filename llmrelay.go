// Package llmrelay dispatches text generation requests across multiple LLM
// providers with response caching, health-aware failover, retry with
// exponential backoff, a concurrency ceiling, and optional request batching.
//
// Basic usage:
//
//	client, err := llmrelay.New(
//	    llmrelay.WithProvider(provider.Config{
//	        Kind:   llmrelay.KindOpenAI,
//	        APIKey: os.Getenv("OPENAI_API_KEY"),
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Generate(ctx, &llmrelay.Request{
//	    Prompt:    "Explain Go channels in one paragraph.",
//	    MaxTokens: 256,
//	})
package llmrelay

import (
	"github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/types"
)

// Version is the current version of llmrelay.
const Version = "1.0.0"

// Re-export core types for convenience, so callers can use
// llmrelay.Request instead of types.Request.
type (
	// Request is a text generation request.
	Request = types.Request

	// Response is a completed generation.
	Response = types.Response

	// Stats is a point-in-time snapshot of dispatch counters.
	Stats = types.Stats

	// Kind identifies a provider family.
	Kind = types.Kind
)

// Provider kinds.
const (
	KindOpenAI    = types.KindOpenAI
	KindAnthropic = types.KindAnthropic
	KindLocal     = types.KindLocal
)

// Sentinel errors.
var (
	// ErrNoHealthyProviders is returned when no registered provider can
	// serve a request.
	ErrNoHealthyProviders = errors.ErrNoHealthyProviders

	// ErrUnknownProvider is returned for a kind outside the supported set.
	ErrUnknownProvider = errors.ErrUnknownProvider
)
