// Package contextpack implements the token estimator, greedy budget
// truncation, and markdown rendering shared by search (truncate) and
// get_context (full pack) per §4.3 and §4.4.
package contextpack

import (
	"fmt"
	"strings"

	"github.com/agentmem/agentmem/internal/model"
)

// Per-field overhead constants, added to the char/4 estimate. The estimator
// is advisory: the system ships no per-model tokenizer.
const (
	fullMemoryOverhead  = 20
	indexProjectionOverhead = 15
)

// EstimateTokens is ceil(len_bytes/4) plus the field overhead for the given
// rendering shape.
func EstimateTokens(m *model.Memory, full bool) int {
	bytes := len(m.Title) + len(m.Content) + len(m.Summary)
	for _, t := range m.Tags {
		bytes += len(t)
	}
	tokens := (bytes + 3) / 4
	if full {
		return tokens + fullMemoryOverhead
	}
	return tokens + indexProjectionOverhead
}

// Truncate greedily keeps memories in rank order until the next item would
// exceed the remaining budget, then stops — it never skips past a large
// item to pack a smaller one later in the list, preserving rank order.
func Truncate(ranked []*model.Memory, budget int, full bool) []*model.Memory {
	if budget <= 0 {
		return nil
	}
	var out []*model.Memory
	remaining := budget
	for _, m := range ranked {
		cost := EstimateTokens(m, full)
		if cost > remaining {
			break
		}
		out = append(out, m)
		remaining -= cost
	}
	return out
}

// Pack is the token-budgeted, rank-ordered set of full memories built for
// an LLM prompt injection.
type Pack struct {
	Memories    []*model.Memory
	TotalTokens int
	Budget      int
	Project     string
}

// BuildPack truncates memoriesInRankOrder to budget (full-memory cost) and
// wraps the result with its totals.
func BuildPack(memoriesInRankOrder []*model.Memory, budget int, project string) Pack {
	kept := Truncate(memoriesInRankOrder, budget, true)
	total := 0
	for _, m := range kept {
		total += EstimateTokens(m, true)
	}
	return Pack{Memories: kept, TotalTokens: total, Budget: budget, Project: project}
}

// Render produces the deterministic markdown layout: a header with project
// + counts, then "## [kind] title" + metadata + body per memory, "---"
// between entries, trailing whitespace trimmed.
func Render(p Pack) string {
	var b strings.Builder

	b.WriteString("# Context Pack\n\n")
	if p.Project != "" {
		fmt.Fprintf(&b, "Project: %s\n", p.Project)
	}
	fmt.Fprintf(&b, "Memories: %d | Tokens: %d/%d\n\n", len(p.Memories), p.TotalTokens, p.Budget)

	for i, m := range p.Memories {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		fmt.Fprintf(&b, "## [%s] %s\n", m.Kind, m.Title)
		fmt.Fprintf(&b, "*status: %s | importance: %.2f | verification: %s*\n", m.Status, m.Importance, m.Verification)
		if len(m.Tags) > 0 {
			fmt.Fprintf(&b, "*tags: %s*\n", strings.Join(m.Tags, ", "))
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(m.Content, " \t\n"))
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), " \t\n") + "\n"
}
