// Package anthropic implements crawler.Curator on top of the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/llm"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel       = "claude-sonnet-4-5"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
	maxErrorDetail     = 2048
)

// Config captures Messages API settings.
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
	messages    sdk.MessageService
	model       string
	temperature float64
	maxTokens   int64
	logger      *zap.Logger
}

var _ crawler.Curator = (*Client)(nil)

// New builds a Client. The SDK's own retries are disabled; retrying is the
// orchestrator's decision.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
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

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	client := sdk.NewClient(opts...)

	return &Client{
		messages:    client.Messages,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
		logger:      logger,
	}, nil
}

// Curate sends one Messages request and returns the concatenated text blocks.
func (c *Client) Curate(ctx context.Context, request crawler.CurationRequest) (string, error) {
	prompt := llm.BuildPrompt(request)
	msg, err := c.messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: sdk.Float(c.temperature),
		System:      []sdk.TextBlockParam{{Text: prompt.System}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt.User)),
		},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			detail := llm.Snippet([]byte(apiErr.Error()), maxErrorDetail)
			c.logger.Error("anthropic api error",
				zap.Int("status", apiErr.StatusCode),
				zap.String("detail", detail),
				zap.String("source_url", request.SourceURL),
			)
			curationErr := crawler.NewCurationError(apiErr.StatusCode, detail)
			curationErr.Err = err
			return "", curationErr
		}
		return "", &crawler.CurationError{Kind: crawler.CurationUpstream, Err: err}
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &crawler.CurationError{Kind: crawler.CurationEmptyResponse, StatusCode: http.StatusOK}
	}
	return b.String(), nil
}
