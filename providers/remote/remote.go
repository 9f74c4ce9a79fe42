// Package remote provides a base implementation for HTTP-backed providers.
// Most vendor APIs follow the OpenAI chat-completions shape with minor
// variations; vendor packages supply an Info describing theirs.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	llmerrors "github.com/quayside/llmrelay/pkg/errors"
	"github.com/quayside/llmrelay/pkg/provider"
	"github.com/quayside/llmrelay/pkg/types"
)

const defaultTimeout = 30 * time.Second

// Info describes a vendor's API dialect.
type Info struct {
	// Kind is the provider identity within the closed enumeration.
	Kind types.Kind

	// DefaultBaseURL is the API endpoint used when config leaves it empty.
	DefaultBaseURL string

	// DefaultModel is used when config names no model.
	DefaultModel string

	// APIKeyHeader is the auth header name. Default: "Authorization".
	APIKeyHeader string

	// APIKeyPrefix prefixes the key value. Default: "Bearer " when the
	// header is Authorization, empty otherwise.
	APIKeyPrefix string

	// ChatEndpoint is the request path. Default: "/chat/completions".
	ChatEndpoint string

	// ExtraHeaders are vendor-mandated headers sent on every request.
	ExtraHeaders map[string]string

	// BuildBody and ParseBody override the OpenAI-compatible dialect for
	// vendors with their own wire shapes. Nil means OpenAI-compatible.
	BuildBody func(req *types.Request, model string) any
	ParseBody func(kind types.Kind, body []byte) (*types.Response, error)
}

// Provider is an HTTP-backed provider adapter.
type Provider struct {
	info    Info
	apiKey  string
	baseURL string
	model   string
	headers map[string]string
	client  *http.Client

	// healthy is a local liveness verdict maintained from the outcome of
	// recent traffic; Healthy never performs a network call.
	healthy atomic.Bool
}

// New creates a provider from config. Adapters start healthy; the verdict
// follows the outcome of subsequent calls.
func New(info Info, cfg provider.Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = info.DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = info.DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &Provider{
		info:    info,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	p.healthy.Store(true)
	return p
}

// Kind returns the provider identity.
func (p *Provider) Kind() types.Kind { return p.info.Kind }

// Healthy reports the cached liveness verdict.
func (p *Provider) Healthy() bool { return p.healthy.Load() }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// chatRequest is the OpenAI-compatible request body. Temperature is
// always transmitted: zero means greedy sampling, not "use the default".
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate issues the provider call and maps the result into the unified
// response model. Transport failures mark the adapter unhealthy; any
// completed exchange, even an API error, marks it healthy again.
func (p *Provider) Generate(ctx context.Context, req *types.Request) (*types.Response, error) {
	var payload any
	if p.info.BuildBody != nil {
		payload = p.info.BuildBody(req, p.model)
	} else {
		payload = chatRequest{
			Model:       p.model,
			Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.healthy.Store(false)
		return nil, llmerrors.NewTransportError(p.info.Kind, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	p.healthy.Store(true)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llmerrors.NewTransportError(p.info.Kind, fmt.Sprintf("read response: %v", err)).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return nil, p.mapError(resp.StatusCode, raw)
	}

	if p.info.ParseBody != nil {
		return p.info.ParseBody(p.info.Kind, raw)
	}
	return parseChatResponse(p.info.Kind, raw)
}

func (p *Provider) endpoint() string {
	if p.info.ChatEndpoint != "" {
		return p.info.ChatEndpoint
	}
	return "/chat/completions"
}

func (p *Provider) setHeaders(httpReq *http.Request) {
	httpReq.Header.Set("Content-Type", "application/json")

	header := p.info.APIKeyHeader
	if header == "" {
		header = "Authorization"
	}
	prefix := p.info.APIKeyPrefix
	if prefix == "" && header == "Authorization" {
		prefix = "Bearer "
	}
	httpReq.Header.Set(header, prefix+p.apiKey)

	for k, v := range p.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
}

func parseChatResponse(kind types.Kind, raw []byte) (*types.Response, error) {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, llmerrors.NewTransportError(kind, "response contains no choices")
	}

	return &types.Response{
		Content:    parsed.Choices[0].Message.Content,
		Provider:   kind,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// mapError converts an API error response into a standardized error.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := fmt.Sprintf("http %d", statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	kind := p.info.Kind
	switch statusCode {
	case http.StatusTooManyRequests:
		return llmerrors.NewRateLimitError(kind, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.NewTimeoutError(kind, message)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return llmerrors.NewInvalidRequestError(kind, message)
	default:
		return llmerrors.NewTransportError(kind, message)
	}
}
