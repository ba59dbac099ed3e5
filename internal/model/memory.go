package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID mints a time-ordered (v7) unique identifier, per the Memory id
// invariant (monotonic by creation). Falls back to a random v4 id if the
// entropy source is unavailable (the only way uuid.NewV7 can fail).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Kind is the closed set of memory kinds.
type Kind string

const (
	KindObservation Kind = "observation"
	KindDecision    Kind = "decision"
	KindPattern     Kind = "pattern"
	KindError       Kind = "error"
	KindFix         Kind = "fix"
	KindPreference  Kind = "preference"
	KindFact        Kind = "fact"
	KindLesson      Kind = "lesson"
	KindTodo        Kind = "todo"
	KindProcedure   Kind = "procedure"
)

// ParseKind decodes a stored discriminator, defaulting to KindObservation
// for anything unrecognized rather than failing the decode.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindObservation, KindDecision, KindPattern, KindError, KindFix,
		KindPreference, KindFact, KindLesson, KindTodo, KindProcedure:
		return Kind(s)
	default:
		return KindObservation
	}
}

// Status is the memory lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusSuperseded Status = "superseded"
	StatusPending    Status = "pending"
)

func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusActive, StatusArchived, StatusSuperseded, StatusPending:
		return Status(s)
	default:
		return StatusActive
	}
}

// Privacy is the visibility tier.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyTeam    Privacy = "team"
	PrivacyPrivate Privacy = "private"
)

func ParsePrivacy(s string) Privacy {
	switch Privacy(s) {
	case PrivacyPublic, PrivacyTeam, PrivacyPrivate:
		return Privacy(s)
	default:
		return PrivacyPrivate
	}
}

// Verification is the trust/verification state.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
	VerificationVerified   Verification = "verified"
	VerificationDisputed   Verification = "disputed"
	VerificationOutdated   Verification = "outdated"
)

func ParseVerification(s string) Verification {
	switch Verification(s) {
	case VerificationUnverified, VerificationVerified, VerificationDisputed, VerificationOutdated:
		return Verification(s)
	default:
		return VerificationUnverified
	}
}

// SourceKind discriminates the Source sum type.
type SourceKind string

const (
	SourceManual      SourceKind = "manual"
	SourceAutoCapture SourceKind = "auto_capture"
	SourceDerived     SourceKind = "derived"
	SourceImport      SourceKind = "import"
)

// Source records how a memory was produced. AutoCapture carries the hook
// name that fired; Derived carries the parent memory ids it was built from.
type Source struct {
	Kind      SourceKind `json:"kind"`
	Hook      string     `json:"hook,omitempty"`
	ParentIDs []string   `json:"parent_ids,omitempty"`
}

func ParseSourceKind(s string) SourceKind {
	switch SourceKind(s) {
	case SourceManual, SourceAutoCapture, SourceDerived, SourceImport:
		return SourceKind(s)
	default:
		return SourceManual
	}
}

// ScopeKind discriminates the Scope sum type.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeProject ScopeKind = "project"
	ScopeSession ScopeKind = "session"
)

// Scope bounds the visibility/grouping of a memory beyond privacy.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

func ParseScopeKind(s string) ScopeKind {
	switch ScopeKind(s) {
	case ScopeGlobal, ScopeProject, ScopeSession:
		return ScopeKind(s)
	default:
		return ScopeGlobal
	}
}

// RelationType is the closed set of graph edge types.
type RelationType string

const (
	RelationCausedBy    RelationType = "caused_by"
	RelationFixes        RelationType = "fixes"
	RelationSupersedes   RelationType = "supersedes"
	RelationRelated       RelationType = "related"
	RelationContradicts   RelationType = "contradicts"
)

func ParseRelationType(s string) RelationType {
	switch RelationType(s) {
	case RelationCausedBy, RelationFixes, RelationSupersedes, RelationRelated, RelationContradicts:
		return RelationType(s)
	default:
		return RelationRelated
	}
}

// MaxContentBytes is the invariant cap on Memory.Content.
const MaxContentBytes = 1 << 20 // 1 MiB

// Memory is the atomic unit of stored knowledge.
type Memory struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Summary      string       `json:"summary,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Source       Source       `json:"source"`
	Scope        Scope        `json:"scope"`
	Importance   float64      `json:"importance"`
	Status       Status       `json:"status"`
	Privacy      Privacy      `json:"privacy"`
	Verification Verification `json:"verification"`
	ProjectID    string       `json:"project_id,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
	CreatedBy    string       `json:"created_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	AccessedAt   time.Time    `json:"accessed_at"`
}

// NormalizeTags lowercases, trims, and deduplicates tags, preserving first
// occurrence order. Matches the invariant that tags are lowercased on write.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := strings.ToLower(strings.TrimSpace(t))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ApplyDefaults fills the invariant defaults for a freshly built Memory
// (verification=Unverified, privacy=Private, status=Active) without
// clobbering values the caller already set.
func (m *Memory) ApplyDefaults() {
	if m.Verification == "" {
		m.Verification = VerificationUnverified
	}
	if m.Privacy == "" {
		m.Privacy = PrivacyPrivate
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.Kind == "" {
		m.Kind = KindObservation
	}
	if m.Source.Kind == "" {
		m.Source.Kind = SourceManual
	}
	if m.Scope.Kind == "" {
		m.Scope.Kind = ScopeGlobal
	}
	m.Tags = NormalizeTags(m.Tags)
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}
}

// Embedding is the vector representation exclusively owned by one Memory.
type Embedding struct {
	MemoryID string    `json:"memory_id"`
	Vector   []float32 `json:"vector"`
	Dims     int       `json:"dims"`
}

// Relation is a typed, weighted graph edge between two memories.
type Relation struct {
	SourceID string       `json:"source_id"`
	TargetID string       `json:"target_id"`
	Type     RelationType `json:"relation_type"`
	Strength float64      `json:"strength"`
}

// Session groups memories created within one agent working session.
type Session struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	MemoryCount int        `json:"memory_count"`
}

// HistoryAction is the closed set of audit log actions.
type HistoryAction string

const (
	ActionCreate      HistoryAction = "create"
	ActionUpdate      HistoryAction = "update"
	ActionDelete      HistoryAction = "delete"
	ActionRelate      HistoryAction = "relate"
	ActionVerify      HistoryAction = "verify"
	ActionConsolidate HistoryAction = "consolidate"
	ActionSupersede   HistoryAction = "supersede"
)

// HistoryEvent is one append-only audit log row.
type HistoryEvent struct {
	ID        int64         `json:"id,omitempty"`
	MemoryID  string        `json:"memory_id"`
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Details   string        `json:"details,omitempty"`
}
