// Package embedding provides the adapter interface the storage and
// retrieval layers depend on to turn text into vectors: a deterministic
// hash backend for tests and offline use, and a remote HTTP provider
// passthrough wrapped by the retry policy.
package embedding

import "context"

// Adapter converts text to a fixed-dimension vector. Dimensions are fixed
// per adapter instance; the same adapter identity must be used for both
// write-time and query-time embedding, or scores are not comparable.
type Adapter interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dims reports the fixed output dimension.
	Dims() int
	// Identity names the adapter + model, used to detect a stale index
	// after a provider/model change.
	Identity() string
}
