// Package anthropic implements the Anthropic Messages API provider.
// Anthropic does not speak the OpenAI dialect, so this package supplies
// its own body builder and parser.
package anthropic

import (
	"fmt"

	"github.com/goccy/go-json"

	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
	"github.com/quayside/llmrelay/providers/remote"
)

const defaultMaxTokens = 1024

var info = remote.Info{
	Kind:           types.KindAnthropic,
	DefaultBaseURL: "https://api.anthropic.com",
	DefaultModel:   "claude-sonnet-4-20250514",
	APIKeyHeader:   "x-api-key",
	ChatEndpoint:   "/v1/messages",
	ExtraHeaders: map[string]string{
		"anthropic-version": "2023-06-01",
	},
	BuildBody: buildBody,
	ParseBody: parseBody,
}

// New creates an Anthropic provider.
func New(cfg provider.Config) (provider.Provider, error) {
	return remote.New(info, cfg), nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func buildBody(req *types.Request, model string) any {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// The Messages API rejects requests without max_tokens.
		maxTokens = defaultMaxTokens
	}
	return messagesRequest{
		Model:       model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

func parseBody(kind types.Kind, raw []byte) (*types.Response, error) {
	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return nil, llmerrors.NewTransportError(kind, "response contains no content blocks")
	}

	return &types.Response{
		Content:    parsed.Content[0].Text,
		Provider:   kind,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}
