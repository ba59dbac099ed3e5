package trust

import "github.com/agentmem/agentmem/internal/model"

// QualityIssue is one tag in the closed assessment taxonomy (§4.11).
type QualityIssue string

const (
	IssueGenericTitle QualityIssue = "generic_title"
	IssueShortContent QualityIssue = "short_content"
	IssueNoTags       QualityIssue = "no_tags"
	IssueLowImportance QualityIssue = "low_importance"
	IssueStale        QualityIssue = "stale"
	IssueOrphaned     QualityIssue = "orphaned"
	IssueLowTrust     QualityIssue = "low_trust"
)

// issuePenalties feed only the derived quality score, never stored state.
var issuePenalties = map[QualityIssue]float64{
	IssueGenericTitle:  0.05,
	IssueShortContent:  0.15,
	IssueNoTags:        0.05,
	IssueLowImportance: 0.10,
	IssueStale:         0.10,
	IssueOrphaned:      0.15,
	IssueLowTrust:      0.20,
}

// genericTitles is the closed set of titles too vague to be useful,
// mirroring the placeholder titles a hurried capture tends to leave behind.
var genericTitles = map[string]bool{
	"note": true, "todo": true, "memory": true, "untitled": true,
	"observation": true, "fix": true, "update": true,
}

// AssessInput bundles the read-time signals assessment needs beyond the
// memory row itself.
type AssessInput struct {
	Memory             *model.Memory
	RelationCount      int
	ContradictionCount int
	StaleAfterDays      int // 0 disables staleness checking
	DaysSinceAccess     int
}

// Assessment is one memory's quality-issue set plus the derived score.
type Assessment struct {
	MemoryID     string
	Issues       []QualityIssue
	TrustScore   float64
	QualityScore float64 // 1.0 minus summed penalties, floored at 0
}

// Assess produces the quality issue set and scores for one memory.
func Assess(in AssessInput) Assessment {
	m := in.Memory
	var issues []QualityIssue

	lowerTitle := normalizeTitle(m.Title)
	if m.Title == "" || genericTitles[lowerTitle] {
		issues = append(issues, IssueGenericTitle)
	}
	if len(m.Content) < 50 {
		issues = append(issues, IssueShortContent)
	}
	if len(m.Tags) == 0 {
		issues = append(issues, IssueNoTags)
	}
	if m.Importance < 0.3 {
		issues = append(issues, IssueLowImportance)
	}
	if in.StaleAfterDays > 0 && in.DaysSinceAccess >= in.StaleAfterDays {
		issues = append(issues, IssueStale)
	}
	if in.RelationCount == 0 {
		issues = append(issues, IssueOrphaned)
	}

	trustScore := Score(m, in.ContradictionCount)
	if trustScore < LowTrustThreshold {
		issues = append(issues, IssueLowTrust)
	}

	quality := 1.0
	for _, issue := range issues {
		quality -= issuePenalties[issue]
	}
	if quality < 0 {
		quality = 0
	}

	return Assessment{
		MemoryID:     m.ID,
		Issues:       issues,
		TrustScore:   trustScore,
		QualityScore: quality,
	}
}

func normalizeTitle(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}
