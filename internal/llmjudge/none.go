package llmjudge

import (
	"context"

	"github.com/agentmem/agentmem/internal/apperr"
)

// NoneAdapter is the adapter used when llm.provider is "none": every call
// fails permanently so callers fall back to their threshold-only path
// (§4.6, §4.8) rather than blocking on a provider that was never
// configured.
type NoneAdapter struct{}

func NewNoneAdapter() *NoneAdapter { return &NoneAdapter{} }

func (NoneAdapter) Complete(_ context.Context, _ string) (string, error) {
	return "", apperr.New(apperr.KindLLM, "no LLM provider configured")
}
