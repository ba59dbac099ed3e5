package llmjudge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func mockMessageResponse(text string) map[string]any {
	return map[string]any{
		"id":    "msg_test",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-3-5-haiku-20241022",
		"usage": map[string]int{"input_tokens": 10, "output_tokens": 5},
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	}
}

// newAdapterWithOpts builds an AnthropicAdapter pointed at a local test
// server instead of the real API.
func newAdapterWithOpts(baseURL string) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:    anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(baseURL), option.WithMaxRetries(0)),
		model:     anthropic.Model("claude-3-5-haiku-20241022"),
		maxTokens: 256,
	}
}

func TestAnthropicAdapter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("expected /messages path, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(mockMessageResponse(`{"decision":"add"}`))
	}))
	defer srv.Close()

	a := newAdapterWithOpts(srv.URL)
	out, err := a.Complete(context.Background(), "classify this memory")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"decision":"add"}` {
		t.Errorf("unexpected completion text: %q", out)
	}
}

func TestAnthropicAdapter_RetriesOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{"type": "error", "error": map[string]any{"type": "rate_limit_error", "message": "slow down"}})
			return
		}
		json.NewEncoder(w).Encode(mockMessageResponse("ok"))
	}))
	defer srv.Close()

	a := newAdapterWithOpts(srv.URL)
	out, err := a.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if out != "ok" {
		t.Errorf("unexpected result %q", out)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestAnthropicAdapter_NoRetryOn400(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"type": "error", "error": map[string]any{"type": "invalid_request_error", "message": "bad"}})
	}))
	defer srv.Close()

	a := newAdapterWithOpts(srv.URL)
	_, err := a.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected no retries on 400, got %d attempts", attempts)
	}
}
