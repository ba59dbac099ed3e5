// Package autorelate implements the three best-effort heuristic strategies
// run after a successful save (§4.7): session-thread, same-file-cluster,
// and error->fix chain. Each is independent, idempotent under the edge
// uniqueness constraint, and never fails the parent save.
package autorelate

import (
	"path"
	"regexp"
	"time"

	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

var log = logging.GetLogger("autorelate")

// errorFixWindow bounds how far back an error->fix chain will look for a
// matching prior Error memory.
const errorFixWindow = 30 * 24 * time.Hour

// filePathPattern finds path-like tokens (has a slash or a short extension)
// in free text. It is deliberately permissive: a false positive just means
// a strategy finds no matching cluster, never a bad edge.
var filePathPattern = regexp.MustCompile(`[\w\-./]+\.[a-zA-Z]{1,6}\b`)

// Store is the subset of storage.DB the strategies need.
type Store interface {
	Timeline(storage.TimelineFilter) (*storage.TimelineResult, error)
	AddRelation(model.Relation) error
}

// Engine runs all three strategies for a newly saved memory.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// RelateNew runs all strategies for m, logging and swallowing any
// individual strategy failure rather than propagating it.
func (e *Engine) RelateNew(m *model.Memory) {
	if err := e.sessionThread(m); err != nil {
		log.Warn("session-thread strategy failed", "memory_id", m.ID, "error", err)
	}
	fp, ok := firstFilePath(m.Content)
	if !ok {
		return
	}
	if err := e.sameFileCluster(m, fp); err != nil {
		log.Warn("same-file-cluster strategy failed", "memory_id", m.ID, "error", err)
	}
	if err := e.errorFixChain(m, fp); err != nil {
		log.Warn("error-fix-chain strategy failed", "memory_id", m.ID, "error", err)
	}
}

// sessionThread links m to the most recent prior memory sharing the same
// non-empty session id, strength 0.5. No-op if session id is empty.
func (e *Engine) sessionThread(m *model.Memory) error {
	if m.SessionID == "" {
		return nil
	}
	res, err := e.store.Timeline(storage.TimelineFilter{
		SessionID: m.SessionID,
		Status:    model.StatusActive,
		Limit:     2,
	})
	if err != nil {
		return err
	}
	prior := mostRecentOther(res.Memories, m.ID)
	if prior == nil {
		return nil
	}
	return e.store.AddRelation(model.Relation{
		SourceID: m.ID, TargetID: prior.ID, Type: model.RelationRelated, Strength: 0.5,
	})
}

// sameFileCluster links m to the most recent prior memory mentioning the
// same file basename, strength 0.6.
func (e *Engine) sameFileCluster(m *model.Memory, filePath string) error {
	base := path.Base(filePath)
	res, err := e.store.Timeline(storage.TimelineFilter{
		Status: model.StatusActive,
		Limit:  50,
	})
	if err != nil {
		return err
	}
	for _, cand := range res.Memories {
		if cand.ID == m.ID {
			continue
		}
		other, ok := firstFilePath(cand.Content)
		if !ok || path.Base(other) != base {
			continue
		}
		return e.store.AddRelation(model.Relation{
			SourceID: m.ID, TargetID: cand.ID, Type: model.RelationRelated, Strength: 0.6,
		})
	}
	return nil
}

// errorFixChain adds a Fixes edge from m to a prior Error memory mentioning
// the same file path within errorFixWindow, when m is a Fix or Decision
// that itself mentions a file path.
func (e *Engine) errorFixChain(m *model.Memory, filePath string) error {
	if m.Kind != model.KindFix && m.Kind != model.KindDecision {
		return nil
	}
	base := path.Base(filePath)
	windowStart := m.CreatedAt.Add(-errorFixWindow)

	res, err := e.store.Timeline(storage.TimelineFilter{
		Kind:   model.KindError,
		Status: model.StatusActive,
		Start:  &windowStart,
		End:    &m.CreatedAt,
		Limit:  50,
	})
	if err != nil {
		return err
	}
	for _, cand := range res.Memories {
		other, ok := firstFilePath(cand.Content)
		if !ok || path.Base(other) != base {
			continue
		}
		return e.store.AddRelation(model.Relation{
			SourceID: m.ID, TargetID: cand.ID, Type: model.RelationFixes, Strength: 0.8,
		})
	}
	return nil
}

func firstFilePath(content string) (string, bool) {
	m := filePathPattern.FindString(content)
	if m == "" {
		return "", false
	}
	return m, true
}

func mostRecentOther(memories []*model.Memory, excludeID string) *model.Memory {
	for _, m := range memories {
		if m.ID != excludeID {
			return m
		}
	}
	return nil
}
