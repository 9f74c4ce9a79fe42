// Package openai implements the OpenAI chat completions provider.
package openai

import (
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
	"github.com/quayside/llmrelay/providers/remote"
)

var info = remote.Info{
	Kind:           types.KindOpenAI,
	DefaultBaseURL: "https://api.openai.com/v1",
	DefaultModel:   "gpt-4o-mini",
}

// New creates an OpenAI provider.
func New(cfg provider.Config) (provider.Provider, error) {
	return remote.New(info, cfg), nil
}
