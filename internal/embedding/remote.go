package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/retry"
)

// RemoteConfig configures the HTTP embedding provider passthrough. The
// wire shape (model + prompt in, embedding out) matches an Ollama-style
// `/api/embeddings` endpoint; any provider exposing the same JSON contract
// at BaseURL works without code changes.
type RemoteConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Dims    int
	Timeout time.Duration
}

// RemoteAdapter calls a remote embedding provider over HTTP, wrapped by the
// bounded exponential backoff retry policy for transient failures.
type RemoteAdapter struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteAdapter constructs a remote embedding adapter.
func NewRemoteAdapter(cfg RemoteConfig) *RemoteAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *RemoteAdapter) Dims() int { return r.cfg.Dims }

func (r *RemoteAdapter) Identity() string { return "remote:" + r.cfg.Model }

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (r *RemoteAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, retry.DefaultMaxAttempts, retry.DefaultBaseDelay, func(ctx context.Context) error {
		v, err := r.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *RemoteAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := r.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *RemoteAdapter) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: r.cfg.Model, Input: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "failed to marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Transient(apperr.KindEmbedding, "embedding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, string(b))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Transient(apperr.KindEmbedding, msg, nil)
		}
		return nil, apperr.New(apperr.KindEmbedding, msg)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindEmbedding, "failed to decode embedding response", err)
	}
	return out.Embedding, nil
}
