package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteAdapter_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	adapter := NewRemoteAdapter(RemoteConfig{BaseURL: srv.URL, Model: "test-model", Dims: 3, Timeout: time.Second})
	vec, err := adapter.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestRemoteAdapter_RetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{1}})
	}))
	defer srv.Close()

	adapter := NewRemoteAdapter(RemoteConfig{BaseURL: srv.URL, Model: "m", Dims: 1, Timeout: time.Second})
	vec, err := adapter.Embed(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(vec) != 1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestRemoteAdapter_PermanentErrorOn400(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter := NewRemoteAdapter(RemoteConfig{BaseURL: srv.URL, Model: "m", Dims: 1, Timeout: time.Second})
	_, err := adapter.Embed(context.Background(), "bad request")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if attempts != 1 {
		t.Errorf("expected no retries on a 4xx error, got %d attempts", attempts)
	}
}
