package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmem/agentmem/internal/model"
)

const timeFormat = time.RFC3339Nano

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// memoryRow mirrors the memories table columns for Scan/marshal round-trips.
type memoryRow struct {
	id, kind, title, content                       string
	summary, tags, source, scope                   sql.NullString
	importance                                      float64
	status, privacy, verification                   string
	projectID, sessionID, createdBy                 sql.NullString
	createdAt, updatedAt, accessedAt                string
}

func marshalMemory(m *model.Memory) (row memoryRow, err error) {
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return row, fmt.Errorf("failed to marshal tags: %w", err)
	}
	sourceJSON, err := json.Marshal(m.Source)
	if err != nil {
		return row, fmt.Errorf("failed to marshal source: %w", err)
	}
	scopeJSON, err := json.Marshal(m.Scope)
	if err != nil {
		return row, fmt.Errorf("failed to marshal scope: %w", err)
	}

	row = memoryRow{
		id:           m.ID,
		kind:         string(m.Kind),
		title:        m.Title,
		content:      m.Content,
		summary:      nullString(m.Summary),
		tags:         nullString(string(tagsJSON)),
		source:       nullString(string(sourceJSON)),
		scope:        nullString(string(scopeJSON)),
		importance:   m.Importance,
		status:       string(m.Status),
		privacy:      string(m.Privacy),
		verification: string(m.Verification),
		projectID:    nullString(m.ProjectID),
		sessionID:    nullString(m.SessionID),
		createdBy:    nullString(m.CreatedBy),
		createdAt:    m.CreatedAt.UTC().Format(timeFormat),
		updatedAt:    m.UpdatedAt.UTC().Format(timeFormat),
		accessedAt:   m.AccessedAt.UTC().Format(timeFormat),
	}
	return row, nil
}

func unmarshalMemory(row memoryRow) (*model.Memory, error) {
	m := &model.Memory{
		ID:           row.id,
		Kind:         model.ParseKind(row.kind),
		Title:        row.title,
		Content:      row.content,
		Summary:      scanNullString(row.summary),
		Importance:   row.importance,
		Status:       model.ParseStatus(row.status),
		Privacy:      model.ParsePrivacy(row.privacy),
		Verification: model.ParseVerification(row.verification),
		ProjectID:    scanNullString(row.projectID),
		SessionID:    scanNullString(row.sessionID),
		CreatedBy:    scanNullString(row.createdBy),
	}

	if tagsJSON := scanNullString(row.tags); tagsJSON != "" {
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err == nil {
			m.Tags = tags
		}
	}
	if sourceJSON := scanNullString(row.source); sourceJSON != "" {
		var s model.Source
		if err := json.Unmarshal([]byte(sourceJSON), &s); err == nil {
			s.Kind = model.ParseSourceKind(string(s.Kind))
			m.Source = s
		}
	}
	if scopeJSON := scanNullString(row.scope); scopeJSON != "" {
		var sc model.Scope
		if err := json.Unmarshal([]byte(scopeJSON), &sc); err == nil {
			sc.Kind = model.ParseScopeKind(string(sc.Kind))
			m.Scope = sc
		}
	}

	var err error
	if m.CreatedAt, err = time.Parse(timeFormat, row.createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(timeFormat, row.updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if m.AccessedAt, err = time.Parse(timeFormat, row.accessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse accessed_at: %w", err)
	}
	return m, nil
}

func scanMemoryRow(scanner interface {
	Scan(dest ...any) error
}) (*model.Memory, error) {
	var row memoryRow
	err := scanner.Scan(
		&row.id, &row.kind, &row.title, &row.content, &row.summary, &row.tags,
		&row.source, &row.scope, &row.importance, &row.status, &row.privacy,
		&row.verification, &row.projectID, &row.sessionID, &row.createdBy,
		&row.createdAt, &row.updatedAt, &row.accessedAt,
	)
	if err != nil {
		return nil, err
	}
	return unmarshalMemory(row)
}

const memoryColumns = `id, kind, title, content, summary, tags, source, scope, importance,
	status, privacy, verification, project_id, session_id, created_by,
	created_at, updated_at, accessed_at`

func parseTimeLoose(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
