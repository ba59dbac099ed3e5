// Package storage is the engine's single source of truth: the embedded
// SQLite backend for memories, embeddings, the vector KNN index, relations,
// sessions and the history audit log, plus the Store interface every other
// component depends on.
package storage
