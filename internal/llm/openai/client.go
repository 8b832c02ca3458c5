// Package openai implements crawler.Curator against OpenAI-compatible
// chat-completions gateways.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/llm"
)

const (
	// DefaultModel matches the gateway model the curator was tuned against.
	DefaultModel       = "google/gemini-2.5-flash"
	// DefaultBaseURL is the OpenAI-compatible gateway used when none is configured.
	DefaultBaseURL     = "https://ai.gateway.lovable.dev"
	defaultTemperature = 0.7
	maxErrorBody       = 2048
	completionsPath    = "/v1/chat/completions"
)

// Config captures gateway connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements crawler.Curator.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *zap.Logger
}

var _ crawler.Curator = (*Client)(nil)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// New builds a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + completionsPath,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Curate sends one chat-completions request and returns the first choice's content.
func (c *Client) Curate(ctx context.Context, request crawler.CurationRequest) (string, error) {
	prompt := llm.BuildPrompt(request)
	body, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &crawler.CurationError{Kind: crawler.CurationUpstream, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("close completion body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := llm.Snippet(payload, maxErrorBody)
		c.logger.Error("llm gateway error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", detail),
			zap.String("source_url", request.SourceURL),
		)
		return "", crawler.NewCurationError(resp.StatusCode, detail)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &crawler.CurationError{Kind: crawler.CurationUpstream, StatusCode: resp.StatusCode, Err: err}
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == nil ||
		strings.TrimSpace(*decoded.Choices[0].Message.Content) == "" {
		return "", &crawler.CurationError{Kind: crawler.CurationEmptyResponse, StatusCode: resp.StatusCode}
	}
	return *decoded.Choices[0].Message.Content, nil
}
