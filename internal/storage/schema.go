package storage

import "fmt"

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the main table definitions: memories, embeddings,
// relations, sessions, and the append-only history log. The vector virtual
// table is created separately (see vecSchemaSQL) since its column list
// depends on the configured embedding dimension.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL DEFAULT 'observation',
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	summary       TEXT,
	tags          TEXT NOT NULL DEFAULT '[]',
	source        TEXT NOT NULL DEFAULT '{"kind":"manual"}',
	scope         TEXT NOT NULL DEFAULT '{"kind":"global"}',
	importance    REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
	status        TEXT NOT NULL DEFAULT 'active',
	privacy       TEXT NOT NULL DEFAULT 'private',
	verification  TEXT NOT NULL DEFAULT 'unverified',
	project_id    TEXT,
	session_id    TEXT,
	created_by    TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	accessed_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_project_id ON memories(project_id);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_session_id ON memories(session_id);

-- Authoritative embedding record; BLOB is a little-endian f32*d vector.
CREATE TABLE IF NOT EXISTS embeddings (
	memory_id  TEXT PRIMARY KEY,
	vector     BLOB NOT NULL,
	dimensions INTEGER NOT NULL,
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS relations (
	source_id     TEXT NOT NULL,
	target_id     TEXT NOT NULL,
	relation_type TEXT NOT NULL CHECK (
		relation_type IN ('caused_by', 'fixes', 'supersedes', 'related', 'contradicts')
	),
	strength REAL NOT NULL CHECK (strength >= 0.0 AND strength <= 1.0),
	PRIMARY KEY (source_id, target_id, relation_type),
	FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
	FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	project_id   TEXT,
	started_at   TEXT NOT NULL,
	ended_at     TEXT,
	summary      TEXT,
	memory_count INTEGER NOT NULL DEFAULT 0
);

-- Append-only audit log. Never updated or deleted by the engine.
CREATE TABLE IF NOT EXISTS history_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_id TEXT NOT NULL,
	action    TEXT NOT NULL CHECK (
		action IN ('create', 'update', 'delete', 'relate', 'verify', 'consolidate', 'supersede')
	),
	timestamp TEXT NOT NULL,
	details   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_history_memory_id ON history_events(memory_id);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history_events(timestamp DESC);

-- Small store-wide key/value scratch space; currently holds only the
-- "embedder_identity" key used to detect a stale index after a
-- provider/model change (§4.2).
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// vecSchemaSQL builds the CREATE VIRTUAL TABLE statement for the vec0 KNN
// index at a fixed dimension. It must run after the sqlite-vec extension is
// registered on the connection (see RegisterExtensions).
func vecSchemaSQL(dims int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(
	memory_id TEXT PRIMARY KEY,
	embedding FLOAT[%d]
);
`, dims)
}
