package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

// ErrMissingAPIKey is returned when the summarizer is enabled without a key.
var ErrMissingAPIKey = errors.New("AI summarizer requires an API key")

// OpenAISummarizer summarizes findings with a chat completion model.
type OpenAISummarizer struct {
	client          *openai.Client
	logger          logger.Logger
	model           string
	maxTokens       int
	costPer1KTokens float64
}

// NewOpenAISummarizer creates a summarizer from cfg.
func NewOpenAISummarizer(cfg config.AIConfig, log logger.Logger) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAISummarizer{
		client:          openai.NewClientWithConfig(clientCfg),
		logger:          log,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		costPer1KTokens: cfg.CostPer1KTokens,
	}, nil
}

// Summarize asks the model for a remediation-oriented summary of f.
func (s *OpenAISummarizer) Summarize(ctx context.Context, f models.ControlFinding) (*Summary, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(f)},
		},
	}
	// Reasoning models reject max_tokens.
	if isReasoningModel(s.model) {
		req.MaxCompletionTokens = s.maxTokens
	} else {
		req.MaxTokens = s.maxTokens
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = s.model
	}

	s.logger.Debug("Generated AI summary",
		"control_id", f.ControlID,
		"model", model,
		"tokens", resp.Usage.TotalTokens)

	return &Summary{
		Text:       text,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
		Cost:       float64(resp.Usage.TotalTokens) / 1000 * s.costPer1KTokens,
	}, nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
