package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/resolvd/internal/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

const systemPrompt = `You are a senior database reliability engineer. Given a classified database error,
explain the most likely root cause and give concrete, safe remediation steps. Never suggest
destructive operations without a verification step first. Be concise.`

// ErrUnavailable is returned by a client that cannot produce text.
var ErrUnavailable = errors.New("advisor unavailable")

// LLMClient generates a completion for a prompt.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewClient builds the client selected by cfg.Provider.
func NewClient(cfg config.AdvisorConfig) (LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderStatic, "":
		return Static{}, nil
	case config.ProviderAnthropic:
		return newAnthropicClient(cfg)
	case config.ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown advisor provider %q", cfg.Provider)
	}
}

// Static answers every prompt with a fixed response. With an empty
// Response it reports ErrUnavailable, so callers use their fallback text.
type Static struct {
	Response string
}

// Complete implements LLMClient.
func (s Static) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Response == "" {
		return "", ErrUnavailable
	}
	return s.Response, nil
}

// httpClient holds what the provider clients share.
type httpClient struct {
	model       string
	apiKey      string `json:"-"` // Never serialize API keys
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

func newHTTPClient(cfg config.AdvisorConfig, model, baseURL string) httpClient {
	if cfg.Model != "" {
		model = cfg.Model
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return httpClient{
		model:       model,
		apiKey:      cfg.APIKey.Value(),
		baseURL:     baseURL,
		http:        &http.Client{Timeout: cfg.Timeout.Duration()},
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// complete waits for the limiter then calls do with exponential backoff
// while it returns retryable errors.
func (c *httpClient) complete(ctx context.Context, do func(context.Context) (string, error)) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := do(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// post sends body as JSON and returns the response payload for a 200.
// Transport failures, 429 and 5xx are retryable.
func (c *httpClient) post(ctx context.Context, path string, body any, headers map[string]string, decodeErr func([]byte) string) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))}
	}
	if resp.StatusCode != http.StatusOK {
		if msg := decodeErr(data); msg != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}

type anthropicClient struct {
	httpClient
}

func newAnthropicClient(cfg config.AdvisorConfig) (*anthropicClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic API key required")
	}
	return &anthropicClient{newHTTPClient(cfg, defaultAnthropicModel, defaultAnthropicBaseURL)}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements LLMClient against the Messages API.
func (a *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		System:      systemPrompt,
		Temperature: 0.2,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"X-API-Key":         a.apiKey,
		"Anthropic-Version": "2023-06-01",
	}
	return a.complete(ctx, func(ctx context.Context) (string, error) {
		data, err := a.post(ctx, "/v1/messages", req, headers, func(b []byte) string {
			var e anthropicError
			if json.Unmarshal(b, &e) == nil {
				return e.Error.Message
			}
			return ""
		})
		if err != nil {
			return "", err
		}
		var resp anthropicResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if len(resp.Content) == 0 {
			return "", fmt.Errorf("empty response from API")
		}
		return resp.Content[0].Text, nil
	})
}

type openAIClient struct {
	httpClient
}

func newOpenAIClient(cfg config.AdvisorConfig) (*openAIClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai API key required")
	}
	return &openAIClient{newHTTPClient(cfg, defaultOpenAIModel, defaultOpenAIBaseURL)}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements LLMClient against the Chat Completions API.
func (o *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return o.complete(ctx, func(ctx context.Context) (string, error) {
		data, err := o.post(ctx, "/v1/chat/completions", req, headers, func(b []byte) string {
			var e openAIError
			if json.Unmarshal(b, &e) == nil {
				return e.Error.Message
			}
			return ""
		})
		if err != nil {
			return "", err
		}
		var resp openAIResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty response from API")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var (
	_ LLMClient = Static{}
	_ LLMClient = (*anthropicClient)(nil)
	_ LLMClient = (*openAIClient)(nil)
)
