package llmjudge

import (
	"context"
	"testing"

	"github.com/agentmem/agentmem/internal/apperr"
)

func TestNoneAdapter_AlwaysFailsPermanently(t *testing.T) {
	a := NewNoneAdapter()
	_, err := a.Complete(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.IsTransient(err) {
		t.Error("expected a permanent error so callers fall back to threshold-only behavior")
	}
}
