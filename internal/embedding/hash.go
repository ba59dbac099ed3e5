package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HashDims is the fixed output width of the hash adapter.
const HashDims = 128

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// HashAdapter is a deterministic, network-free embedding adapter: a
// feature-hashing scheme that buckets lowercased alphanumeric tokens into a
// fixed-width vector by FNV-1a hash, accumulating a signed count per bucket
// and L2-normalizing. Two calls on the same text always produce the same
// vector; no model, no license, suitable for tests and offline operation.
type HashAdapter struct{}

// NewHashAdapter constructs the deterministic hash embedding adapter.
func NewHashAdapter() *HashAdapter { return &HashAdapter{} }

func (h *HashAdapter) Dims() int { return HashDims }

func (h *HashAdapter) Identity() string { return "hash:fnv1a-128" }

func (h *HashAdapter) Embed(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

func (h *HashAdapter) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t)
	}
	return out, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, HashDims)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum % HashDims)

		sign := fnv.New32a()
		_, _ = sign.Write([]byte(tok + "#sign"))
		if sign.Sum32()%2 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
