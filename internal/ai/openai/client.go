// Package openai implements the interview text generator on top of the OpenAI
// Chat Completions API. Any OpenAI-compatible endpoint can be used through
// BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/spigell/ai-interviewer/internal/logger"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultMaxRetries = 3
	defaultTimeout    = 60 * time.Second
)

// Config holds OpenAI generator settings.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// Generator sends single-turn chat completions.
type Generator struct {
	client oai.Client
	model  string
	logger *zap.Logger
}

// NewGenerator creates a Generator. The SDK's own retry loop provides the
// bounded retry budget.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The SDK counts retries after the first attempt.
		option.WithMaxRetries(maxRetries - 1),
		option.WithRequestTimeout(timeout),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Generator{
		client: oai.NewClient(opts...),
		model:  model,
		logger: logger.WithCommonFields(log, "openai", model),
	}, nil
}

// GenerateContent returns the first choice of a chat completion.
func (g *Generator) GenerateContent(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var messages []oai.ChatCompletionMessageParamUnion
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned empty choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("openai api returned empty response")
	}

	g.logger.Debug("chat completion finished",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
