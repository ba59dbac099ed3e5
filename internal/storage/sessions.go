package storage

import (
	"database/sql"

	"github.com/agentmem/agentmem/internal/apperr"
	"github.com/agentmem/agentmem/internal/model"
)

// SaveSession upserts a session row.
func (d *DB) SaveSession(s *model.Session) error {
	var endedAt sql.NullString
	if s.EndedAt != nil {
		endedAt = nullString(s.EndedAt.UTC().Format(timeFormat))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.Exec(`
		INSERT INTO sessions (id, project_id, started_at, ended_at, summary, memory_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id=excluded.project_id, ended_at=excluded.ended_at,
			summary=excluded.summary, memory_count=excluded.memory_count
	`, s.ID, nullString(s.ProjectID), s.StartedAt.UTC().Format(timeFormat), endedAt,
		nullString(s.Summary), s.MemoryCount)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to save session", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (d *DB) GetSession(id string) (*model.Session, error) {
	d.mu.RLock()
	row := d.sql.QueryRow(`SELECT id, project_id, started_at, ended_at, summary, memory_count FROM sessions WHERE id = ?`, id)
	d.mu.RUnlock()

	var s model.Session
	var projectID, summary, endedAt sql.NullString
	var startedAt string
	if err := row.Scan(&s.ID, &projectID, &startedAt, &endedAt, &summary, &s.MemoryCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "session not found: "+id)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "failed to scan session", err)
	}

	s.ProjectID = scanNullString(projectID)
	s.Summary = scanNullString(summary)
	t, err := parseTimeLoose(startedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to parse session started_at", err)
	}
	s.StartedAt = t
	if endedAt.Valid {
		et, err := parseTimeLoose(endedAt.String)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "failed to parse session ended_at", err)
		}
		s.EndedAt = &et
	}
	return &s, nil
}
