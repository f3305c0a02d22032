package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
)

var (
	// ErrCompletion is returned when the completion endpoint fails
	ErrCompletion = errors.New("insights: completion failed")

	// ErrEmptyCompletion is returned when the endpoint answers without text
	ErrEmptyCompletion = errors.New("insights: empty completion")
)

const defaultCompletionTimeout = 60 * time.Second

type completionRequest struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Feature   string `json:"feature"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// HTTPCompleter posts prompts to a completion endpoint that answers {"text": "..."}
type HTTPCompleter struct {
	rc       *resty.Client
	endpoint string
	model    string
}

// NewHTTPCompleter creates a completer for cfg.Endpoint
func NewHTTPCompleter(cfg config.InsightsConfig) *HTTPCompleter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}
	return &HTTPCompleter{rc: rc, endpoint: cfg.Endpoint, model: cfg.Model}
}

// Complete implements Completer
func (h *HTTPCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var out completionResponse
	resp, err := h.rc.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:     h.model,
			Prompt:    req.Prompt,
			MaxTokens: req.MaxTokens,
			Feature:   req.Feature,
		}).
		SetResult(&out).
		Post(h.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrCompletion, resp.StatusCode())
	}
	if out.Text == "" {
		return "", ErrEmptyCompletion
	}
	return out.Text, nil
}
