package llmjudge

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/retry"
)

// AnthropicAdapter calls the Claude Messages API for dedup judging,
// consolidate merge prompts, and any other structured extraction, wrapped
// by the bounded retry policy.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicAdapter constructs an adapter using apiKey for auth. model and
// maxTokens come from the LLM config section.
func NewAnthropicAdapter(apiKey, model string, maxTokens int) *AnthropicAdapter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicAdapter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

func (a *AnthropicAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := retry.Do(ctx, retry.DefaultMaxAttempts, retry.DefaultBaseDelay, func(ctx context.Context) error {
		message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return classifyAnthropicErr(err)
		}
		if len(message.Content) == 0 {
			return apperr.New(apperr.KindLLM, "anthropic response had no content blocks")
		}
		block := message.Content[0]
		if block.Type != "text" {
			return apperr.New(apperr.KindLLM, "anthropic response block was not text: "+string(block.Type))
		}
		text = block.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// classifyAnthropicErr marks 429/5xx anthropic API errors transient,
// matching §4.14's classification (4xx, other than the rate-limit case,
// is permanent).
func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	errors.As(err, &apiErr)
	if apiErr != nil && (apiErr.StatusCode == 429 || apiErr.StatusCode >= 500) {
		return apperr.Transient(apperr.KindLLM, "anthropic API call failed", err)
	}
	return apperr.Wrap(apperr.KindLLM, "anthropic API call failed", err)
}
