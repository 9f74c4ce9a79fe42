// Package types defines the core request/response model shared by the
// dispatcher, providers, and caches.
package types

import (
	"fmt"
	"time"
)

// Kind identifies a backend provider family.
//
// Kind is a closed enumeration: selection and factory logic switch over it
// exhaustively, so new backends are added here rather than as ad hoc strings.
type Kind string

const (
	// KindOpenAI is the OpenAI-compatible HTTP backend.
	KindOpenAI Kind = "openai"

	// KindAnthropic is the Anthropic HTTP backend.
	KindAnthropic Kind = "anthropic"

	// KindLocal is an in-process model backend with no network dependency.
	KindLocal Kind = "local"
)

// Kinds lists every known provider kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindOpenAI, KindAnthropic, KindLocal}
}

// Valid reports whether k names a known provider kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOpenAI, KindAnthropic, KindLocal:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Request is a single generation request. Values are treated as immutable
// once handed to the dispatcher; cached responses may be shared between
// callers holding equal requests.
//
// Cache identity is derived from Prompt, MaxTokens, and Temperature only.
// Preferences and Metadata never affect the cache fingerprint.
type Request struct {
	Prompt      string            `json:"prompt"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Preferences []Kind            `json:"preferences,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Generation defaults applied when a request leaves the fields zero.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// GreedyTemperature requests deterministic (temperature 0) sampling.
// A literal zero cannot be told apart from an unset field, so greedy
// sampling is spelled with this sentinel instead.
const GreedyTemperature = -1.0

// Normalized returns a copy with generation defaults filled in. The
// dispatcher normalizes before fingerprinting, so a request relying on
// defaults and one spelling them out share a cache entry. A zero
// Temperature takes the default; GreedyTemperature becomes 0.
func (r *Request) Normalized() *Request {
	out := *r
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	switch {
	case out.Temperature == 0:
		out.Temperature = DefaultTemperature
	case out.Temperature < 0:
		out.Temperature = 0
	}
	return &out
}

// Validate checks the request for dispatchability.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	if r.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Response is the result of one completed dispatch. Latency is stamped by
// the dispatcher from its own wall clock, not by the provider. A cached
// Response is immutable and returned as-is to every subsequent hit.
type Response struct {
	Content    string            `json:"content"`
	Provider   Kind              `json:"provider"`
	TokensUsed int               `json:"tokens_used"`
	Latency    time.Duration     `json:"latency"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Stats is a point-in-time snapshot of dispatcher counters. It is a copy
// and never aliases live state.
type Stats struct {
	RequestsTotal   uint64 `json:"requests_total"`
	CacheHits       uint64 `json:"cache_hits"`
	Errors          uint64 `json:"errors"`
	CacheHitRate    string `json:"cache_hit_rate"`
	ActiveProviders int    `json:"active_providers"`
	CacheEntries    int    `json:"cache_entries"`
}
