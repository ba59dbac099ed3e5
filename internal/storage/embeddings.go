package storage

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/agentmem/agentmem/internal/apperr"
)

// GetEmbeddings fetches the raw stored vectors for a set of memory ids, for
// callers that need exact cosine similarity rather than the vec-index's
// distance-derived score (e.g. the dedup gate's threshold comparisons).
// Ids with no embedding row are simply absent from the result.
func (d *DB) GetEmbeddings(ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	d.mu.RLock()
	rows, err := d.sql.Query(`SELECT memory_id, vector, dimensions FROM embeddings WHERE memory_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	d.mu.RUnlock()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &blob, &dims); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to scan embedding", err)
		}
		out[id] = decodeFloat32Blob(blob, dims)
	}
	return out, rows.Err()
}

// decodeFloat32Blob reads the little-endian f32*d vector format the vec0
// virtual table and the embeddings BLOB column share.
func decodeFloat32Blob(blob []byte, dims int) []float32 {
	vec := make([]float32, dims)
	for i := 0; i < dims && (i+1)*4 <= len(blob); i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
