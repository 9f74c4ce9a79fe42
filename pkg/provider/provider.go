// Package provider defines the public contract every backend must implement.
// The dispatcher treats all backends uniformly through this interface.
package provider

import (
	"context"
	"time"

	"github.com/quayside/llmrelay/pkg/types"
)

// Provider is the capability any backend must expose: produce a response
// for a request and report current health.
type Provider interface {
	// Kind returns the provider's identity within the closed enumeration.
	Kind() types.Kind

	// Generate produces a response for the request. It must eventually
	// resolve with a response or an explicit error so that retry/backoff
	// can make progress; it never blocks forever on a dead network.
	Generate(ctx context.Context, req *types.Request) (*types.Response, error)

	// Healthy reports a local liveness verdict. It must return promptly
	// and must not perform a network call; adapters maintain it from the
	// outcome of recent traffic.
	Healthy() bool
}

// Config contains per-provider settings consumed by factories.
type Config struct {
	Kind    types.Kind        `yaml:"kind"`
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url"`
	Model   string            `yaml:"model"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// Factory creates a provider instance from configuration.
type Factory func(cfg Config) (Provider, error)
