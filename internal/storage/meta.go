package storage

import (
	"database/sql"

	"github.com/agentmem/agentmem/internal/apperr"
)

// EmbedderIdentityKey is the store_meta key holding the embedding adapter
// identity (provider + model) that produced the currently indexed vectors.
const EmbedderIdentityKey = "embedder_identity"

// GetMeta reads a store_meta value. ok is false if the key has never been
// set.
func (d *DB) GetMeta(key string) (value string, ok bool, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.sql.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, apperr.Wrap(apperr.KindStorage, "failed to read store_meta", err)
	}
	return value, true, nil
}

// SetMeta upserts a store_meta value.
func (d *DB) SetMeta(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.sql.Exec(`
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to write store_meta", err)
	}
	return nil
}
