// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/common/metrics"
)

var (
	ErrModelUnavailable = errors.New("MODEL_UNAVAILABLE")
	ErrModelTimeout     = errors.New("MODEL_TIMEOUT")
)

// Generator is the prompt-in/text-out contract of the generative model service.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client calls the GenAI HTTP endpoint with bounded retries and exponential
// backoff. Rate limits and server errors are retried; the context deadline is
// the overall budget for all attempts.
type Client struct {
	cfg    config.GenAIConfig
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.GenAIConfig, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			// No client-level timeout: the per-call context carries the budget.
		},
		logger: log.WithFields(map[string]interface{}{"component": "genai"}),
	}
}

func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.GetTimeout())
	defer cancel()

	requestBody := map[string]interface{}{
		"model":       c.cfg.Model,
		"system":      systemPrompt,
		"prompt":      userPrompt,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}
	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.ModelCalls.WithLabelValues("timeout").Inc()
				return "", ErrModelTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/api/ai/generate", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			metrics.ModelCalls.WithLabelValues("timeout").Inc()
			return "", ErrModelTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			if !retryableStatus(resp.StatusCode) {
				resp = nil
				metrics.ModelCalls.WithLabelValues("error").Inc()
				return "", fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				c.logger.Warn("model service rate limited", map[string]interface{}{
					"attempt": attempt,
				})
			}
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.ModelCalls.WithLabelValues("timeout").Inc()
			return "", ErrModelTimeout
		}
		metrics.ModelCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
	}

	if resp == nil {
		metrics.ModelCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: no successful response after retries", ErrModelUnavailable)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		metrics.ModelCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: decode error: %v", ErrModelUnavailable, err)
	}

	metrics.ModelCalls.WithLabelValues("ok").Inc()
	return apiResponse.Text, nil
}

// Rate limits and server-side failures are transient; other client errors
// are not worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
