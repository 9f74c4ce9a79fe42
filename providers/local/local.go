// Package local implements an in-process provider useful for development
// and as a last-resort fallback. It never performs network I/O.
package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

// Provider generates deterministic canned completions.
type Provider struct {
	model string
	delay time.Duration
}

// New creates a local provider. Config is accepted for factory symmetry;
// only Model is consulted.
func New(cfg provider.Config) (provider.Provider, error) {
	model := cfg.Model
	if model == "" {
		model = "local-echo"
	}
	return &Provider{model: model}, nil
}

// NewWithDelay creates a local provider that sleeps before responding,
// for exercising timeout and concurrency behavior in tests.
func NewWithDelay(delay time.Duration) *Provider {
	return &Provider{model: "local-echo", delay: delay}
}

func (p *Provider) Kind() types.Kind { return types.KindLocal }

// Healthy always reports true; there is no dependency to fail.
func (p *Provider) Healthy() bool { return true }

func (p *Provider) Generate(ctx context.Context, req *types.Request) (*types.Response, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	content := fmt.Sprintf("[%s] %s", p.model, req.Prompt)
	return &types.Response{
		Content:    content,
		Provider:   types.KindLocal,
		TokensUsed: estimateTokens(req.Prompt, content),
	}, nil
}

// estimateTokens approximates usage as word count plus a small overhead.
func estimateTokens(prompt, content string) int {
	return len(strings.Fields(prompt)) + len(strings.Fields(content)) + 10
}
