// Package genai wraps an OpenAI-compatible text-generation endpoint with the
// pacing and retry discipline the resolution workflow depends on. The client
// never retries beyond its fixed budget; terminal failures propagate to the
// calling node, which degrades to its safe default.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// Generator is the narrow contract the analyzer and judge consume.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds client parameters. The pacing
// delay is inserted before every call to respect provider quotas, the quota
// backoff is slept when the provider signals quota exhaustion, and the retry
// backoff separates attempts after other transient failures.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float64
	PacingDelay  time.Duration
	QuotaBackoff time.Duration
	RetryBackoff time.Duration
	MaxRetries   int
}

// Client calls a chat-completions endpoint and returns raw response text.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a generation Client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With(slog.String("component", "genai")),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate sends the prompt and returns the first candidate's text.
//
// A quota-exceeded signal does not consume the retry budget: the client sleeps
// the quota backoff and retries the same attempt in place. A response with no
// candidates is terminal and returns ErrEmptyGeneration immediately. Any other
// transient failure consumes one attempt. After MaxRetries consecutive
// failures the last error is returned.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.RetryBackoff); err != nil {
				return "", err
			}
		}

		// Fixed pacing before every call.
		if err := sleepCtx(ctx, c.cfg.PacingDelay); err != nil {
			return "", err
		}

		text, err := c.call(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		if errors.Is(err, domain.ErrEmptyGeneration) {
			// The provider answered but produced nothing; retrying the same
			// prompt will not help.
			return "", err
		}

		if isQuota(err) {
			c.logger.Warn("generation quota exceeded, backing off",
				slog.Duration("backoff", c.cfg.QuotaBackoff),
			)
			if serr := sleepCtx(ctx, c.cfg.QuotaBackoff); serr != nil {
				return "", serr
			}
			attempt-- // quota pauses do not count as logical failures
			continue
		}

		lastErr = err
		c.logger.Warn("generation attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return "", fmt.Errorf("genai: retries exhausted: %w", lastErr)
}

// call performs a single HTTP round trip.
func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("genai: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("genai: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("genai: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("genai: status 429: %w", domain.ErrQuotaExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		if quotaBody(msg) {
			return "", fmt.Errorf("genai: status %d: %w", resp.StatusCode, domain.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("genai: status %d: %s", resp.StatusCode, msg)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("genai: decode response: %w", err)
	}
	if parsed.Error != nil {
		if quotaBody(parsed.Error.Message) {
			return "", fmt.Errorf("genai: %s: %w", parsed.Error.Message, domain.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("genai: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", domain.ErrEmptyGeneration
	}

	return parsed.Choices[0].Message.Content, nil
}

// isQuota reports whether err is the provider's quota/backoff signal, which is
// handled separately from hard failures.
func isQuota(err error) bool {
	return errors.Is(err, domain.ErrQuotaExceeded)
}

func quotaBody(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "resource_exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
