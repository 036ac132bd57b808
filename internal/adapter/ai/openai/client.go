// Package openai implements domain.ChatClient against an OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vettly/match-explainer/internal/adapter/ai/tokencount"
	"github.com/vettly/match-explainer/internal/adapter/observability"
	"github.com/vettly/match-explainer/internal/config"
	"github.com/vettly/match-explainer/internal/domain"
)

const (
	provider = "openai"
	// maxErrorBody caps the provider body kept on an UpstreamError.
	maxErrorBody = 2 << 10
)

// Client calls /chat/completions once per request. It never retries; a failed
// generation is surfaced to the caller as is.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	hc      *http.Client
	counter *tokencount.Counter
}

// New constructs a Client from configuration. The transport is instrumented
// with otelhttp so each completion shows up as a client span.
func New(cfg config.Config) *Client {
	timeout := cfg.OpenAITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:   cfg.OpenAIModel,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		counter: tokencount.Default,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *tokencount.Usage `json:"usage"`
}

// Complete sends one chat completion. Non-2xx replies become
// *domain.UpstreamError carrying the status and a truncated body.
func (c *Client) Complete(ctx context.Context, req domain.ChatRequest) (domain.ChatResult, error) {
	if c.apiKey == "" {
		return domain.ChatResult{}, domain.NewError(domain.ErrMissingCredentials, "OpenAI API key not configured", nil)
	}
	b, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=openai.Complete: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("op=openai.Complete: %w", err)
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")

	slog.Debug("calling chat completions",
		slog.String("provider", provider),
		slog.String("model", c.model),
		slog.Int("max_tokens", req.MaxTokens))

	start := time.Now()
	resp, err := c.hc.Do(r)
	observability.AIRequestsTotal.WithLabelValues(provider, "chat").Inc()
	observability.AIRequestDuration.WithLabelValues(provider, "chat").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("chat completion transport error", slog.String("provider", provider), slog.Any("error", err))
		return domain.ChatResult{}, fmt.Errorf("op=openai.Complete: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, maxErrorBody)
		observability.AIErrorsTotal.WithLabelValues(provider, fmt.Sprint(resp.StatusCode)).Inc()
		slog.Error("ai provider non-2xx",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.model),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return domain.ChatResult{}, &domain.UpstreamError{Status: resp.StatusCode, Body: snippet}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Error("ai provider decode error", slog.String("provider", provider), slog.Any("error", err))
		return domain.ChatResult{}, fmt.Errorf("op=openai.Complete: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		slog.Error("ai provider returned empty choices", slog.String("provider", provider))
		return domain.ChatResult{}, domain.NewError(domain.ErrUpstream, "API error: empty completion", nil)
	}

	res := domain.ChatResult{
		Content: out.Choices[0].Message.Content,
		Model:   out.Model,
	}
	if res.Model == "" {
		res.Model = c.model
	}
	if out.Usage != nil && out.Usage.TotalTokens > 0 {
		res.TotalTokens = out.Usage.TotalTokens
	} else {
		res.TotalTokens = c.counter.Estimate(req.SystemPrompt, req.UserPrompt, res.Content, res.Model).TotalTokens
	}
	observability.AITokensTotal.WithLabelValues(provider).Add(float64(res.TotalTokens))
	return res, nil
}

// readSnippet reads at most n bytes from r.
func readSnippet(r io.Reader, n int) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return string(b)
}
