// Package llmjudge provides the structured LLM extraction helper used by
// dedup, consolidate, and auto-tag (§4.9): a uniform prompt-in,
// typed-struct-out call over a pluggable LLM adapter, plus the adapters
// themselves (a disabled stub and the Anthropic passthrough).
package llmjudge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentmem/agentmem/internal/apperr"
)

// Adapter is the minimal LLM call surface the engine depends on: a single
// prompt in, a single text completion out. Retries for transient errors are
// the adapter's own responsibility (see internal/retry).
type Adapter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extract sends prompt to adapter and decodes the response into a T,
// trimming one markdown fence wrapper ("```json" or plain "```") if
// present. A decode failure surfaces as a transient-classified LLM error
// per §4.9, since a malformed response is often a one-off model hiccup.
func Extract[T any](ctx context.Context, adapter Adapter, prompt string) (T, error) {
	var zero T
	raw, err := adapter.Complete(ctx, prompt)
	if err != nil {
		return zero, err
	}

	trimmed := trimFence(raw)

	var out T
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return zero, apperr.Transient(apperr.KindLLM, "failed to decode structured LLM response", err)
	}
	return out, nil
}

// trimFence strips a single leading/trailing markdown code fence, with or
// without a "json" language tag, leaving the body untouched otherwise.
func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "\n")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
