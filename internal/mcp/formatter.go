package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/consolidate"
	"github.com/agentmem/agentmem/internal/contextpack"
	"github.com/agentmem/agentmem/internal/dedup"
	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/internal/trust"
)

// Formatter renders tool results as UX-friendly markdown with a raw-JSON
// fallback section, matching the teacher's response shape.
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatToolResponse formats a tool response with rich UX elements.
func (f *Formatter) FormatToolResponse(toolName string, result interface{}, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n%s **%s**\n", f.getToolIcon(toolName), f.formatToolName(toolName)))
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	switch toolName {
	case "save_memory":
		sb.WriteString(f.formatSaveMemory(result))
	case "get_memories":
		sb.WriteString(f.formatMemoryList(result))
	case "update_memory", "verify_memory":
		sb.WriteString(f.formatMemory(result))
	case "delete_memory":
		sb.WriteString(f.formatDeleteMemory(result))
	case "search":
		sb.WriteString(f.formatSearch(result))
	case "timeline":
		sb.WriteString(f.formatTimeline(result))
	case "relate_memories":
		sb.WriteString(f.formatRelation(result))
	case "follow_chain":
		sb.WriteString(f.formatChain(result))
	case "history":
		sb.WriteString(f.formatHistory(result))
	case "assess":
		sb.WriteString(f.formatAssess(result))
	case "reembed":
		sb.WriteString(f.formatReembed(result))
	case "consolidate":
		sb.WriteString(f.formatConsolidate(result))
	case "get_context":
		sb.WriteString(f.formatContextPack(result))
	case "save_session_summary":
		sb.WriteString(f.formatSessionSummary(result))
	default:
		sb.WriteString(f.fallbackJSON(result))
	}

	sb.WriteString("\n\n")
	sb.WriteString(f.formatPerformance(duration))

	sb.WriteString("\n\n<details>\n<summary>Raw JSON response</summary>\n\n```json\n")
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	sb.WriteString(string(jsonBytes))
	sb.WriteString("\n```\n</details>")

	return sb.String()
}

func (f *Formatter) getToolIcon(toolName string) string {
	icons := map[string]string{
		"save_memory":          "💾",
		"get_memories":         "📖",
		"update_memory":        "✏️",
		"delete_memory":        "🗑️",
		"search":               "🔍",
		"timeline":             "🕒",
		"relate_memories":      "🔗",
		"follow_chain":         "🕸️",
		"history":              "📜",
		"assess":               "🧪",
		"reembed":              "♻️",
		"consolidate":          "🧬",
		"verify_memory":        "✅",
		"get_context":          "📦",
		"save_session_summary": "📝",
	}
	if icon, ok := icons[toolName]; ok {
		return icon
	}
	return "⚡"
}

func (f *Formatter) formatToolName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func (f *Formatter) formatSaveMemory(result interface{}) string {
	r, ok := result.(*engine.IngestResult)
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	switch r.Decision {
	case dedup.KindSkip:
		sb.WriteString("⏭️ **Skipped (near-duplicate)**\n\n")
	case dedup.KindUpdate:
		sb.WriteString("🔄 **Merged into existing memory**\n\n")
	case dedup.KindContradict:
		sb.WriteString("⚔️ **Stored, contradicts an existing memory**\n\n")
	default:
		sb.WriteString("✅ **Memory Stored**\n\n")
	}
	if r.Reason != "" {
		sb.WriteString(fmt.Sprintf("*%s*\n\n", r.Reason))
	}
	if r.Memory != nil {
		sb.WriteString(f.memoryBlock(r.Memory))
	}
	return sb.String()
}

func (f *Formatter) memoryBlock(m *model.Memory) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("```\n%s\n```\n", f.truncateContent(m.Content, 300)))
	sb.WriteString("┌─────────────────────────────────────┐\n")
	sb.WriteString(fmt.Sprintf("│ 🆔 %s\n", f.truncateID(m.ID)))
	sb.WriteString(fmt.Sprintf("│ 🏷️  %s | kind: %s\n", m.Title, m.Kind))
	if len(m.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("│ 🏷️  tags: %s\n", strings.Join(m.Tags, ", ")))
	}
	sb.WriteString(fmt.Sprintf("│ ⭐ importance: %.2f | status: %s\n", m.Importance, m.Status))
	sb.WriteString(fmt.Sprintf("│ 📅 %s\n", m.CreatedAt.Format("Jan 02, 2006 15:04")))
	sb.WriteString("└─────────────────────────────────────┘")
	return sb.String()
}

func (f *Formatter) formatMemory(result interface{}) string {
	m, ok := result.(*model.Memory)
	if !ok {
		return f.fallbackJSON(result)
	}
	return f.memoryBlock(m)
}

func (f *Formatter) formatMemoryList(result interface{}) string {
	ms, ok := result.([]*model.Memory)
	if !ok {
		return f.fallbackJSON(result)
	}
	if len(ms) == 0 {
		return "```\nNo memories found.\n```"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found **%d** memor%s:\n\n", len(ms), plural(len(ms))))
	for i, m := range ms {
		sb.WriteString(fmt.Sprintf("%d. `%s` **%s** (%s)\n", i+1, f.truncateID(m.ID), m.Title, m.Kind))
	}
	return sb.String()
}

func (f *Formatter) formatDeleteMemory(result interface{}) string {
	m, ok := result.(map[string]string)
	if !ok {
		return f.fallbackJSON(result)
	}
	return fmt.Sprintf("🗑️ **Deleted** `%s`", f.truncateID(m["deleted"]))
}

func (f *Formatter) formatSearch(result interface{}) string {
	r, ok := result.(*SearchResult)
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 **Found %d result(s)**\n\n", r.Count))
	if r.Count == 0 {
		sb.WriteString("```\nNo memories match your search criteria.\n```")
		return sb.String()
	}
	for i, m := range r.Memories {
		score := 0.0
		if i < len(r.Scores) {
			score = r.Scores[i].Score
		}
		bar := f.makeProgressBar(score, 10)
		sb.WriteString(fmt.Sprintf("### %d. `%s` — %s\n", i+1, f.truncateID(m.ID), m.Title))
		sb.WriteString(fmt.Sprintf("**Score:** %s %.2f\n\n", bar, score))
		sb.WriteString(fmt.Sprintf("> %s\n\n", f.truncateContent(m.Content, 200)))
	}
	return sb.String()
}

func (f *Formatter) formatTimeline(result interface{}) string {
	r, ok := result.(*storage.TimelineResult)
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🕒 **%d memories**\n\n", len(r.Memories)))
	for _, m := range r.Memories {
		sb.WriteString(fmt.Sprintf("- `%s` [%s] %s (%s)\n", f.truncateID(m.ID), m.Kind, m.Title, m.CreatedAt.Format("Jan 02 15:04")))
	}
	return sb.String()
}

func (f *Formatter) formatRelation(result interface{}) string {
	r, ok := result.(model.Relation)
	if !ok {
		return f.fallbackJSON(result)
	}
	return fmt.Sprintf("🔗 **%s** --[%s]--> **%s** (strength %.2f)",
		f.truncateID(r.SourceID), r.Type, f.truncateID(r.TargetID), r.Strength)
}

func (f *Formatter) formatChain(result interface{}) string {
	nodes, ok := result.([]engine.ChainNode)
	if !ok {
		return f.fallbackJSON(result)
	}
	if len(nodes) == 0 {
		return "```\nNo connected memories within the requested depth.\n```"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🕸️ **%d connected memories**\n\n", len(nodes)))
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("- [depth %d] --[%s]--> `%s` %s\n", n.Depth, n.Relation.Type, f.truncateID(n.Memory.ID), n.Memory.Title))
	}
	return sb.String()
}

func (f *Formatter) formatHistory(result interface{}) string {
	events, ok := result.([]model.HistoryEvent)
	if !ok {
		return f.fallbackJSON(result)
	}
	if len(events) == 0 {
		return "```\nNo audit events.\n```"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📜 **%d audit events**\n\n", len(events)))
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("- %s **%s** `%s` %s\n", e.Timestamp.Format("Jan 02 15:04"), e.Action, f.truncateID(e.MemoryID), e.Details))
	}
	return sb.String()
}

func (f *Formatter) formatAssess(result interface{}) string {
	data, ok := result.(struct {
		Assessments []trust.Assessment `json:"assessments"`
		Count       int                `json:"count"`
	})
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧪 **Assessed %d memories**\n\n", data.Count))
	flagged := 0
	for _, a := range data.Assessments {
		if len(a.Issues) == 0 {
			continue
		}
		flagged++
		if flagged > 20 {
			continue
		}
		sb.WriteString(fmt.Sprintf("- `%s` trust=%.2f quality=%.2f issues=%v\n", f.truncateID(a.MemoryID), a.TrustScore, a.QualityScore, a.Issues))
	}
	sb.WriteString(fmt.Sprintf("\n**%d** memories have at least one quality issue.", flagged))
	return sb.String()
}

func (f *Formatter) formatReembed(result interface{}) string {
	r, ok := result.(*engine.ReembedResult)
	if !ok {
		return f.fallbackJSON(result)
	}
	return fmt.Sprintf("♻️ **Re-embed complete**\n\nscanned: %d | reembedded: %d | failed: %d", r.Scanned, r.Reembedded, r.Failed)
}

func (f *Formatter) formatConsolidate(result interface{}) string {
	data, ok := result.(struct {
		Clusters []consolidate.ClusterResult `json:"clusters"`
		Count    int                         `json:"count"`
	})
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧬 **%d cluster(s)**\n\n", data.Count))
	for _, c := range data.Clusters {
		if c.DryRun {
			sb.WriteString(fmt.Sprintf("- [dry-run] %d members, seed: %q\n", len(c.OriginalIDs), c.Title))
			continue
		}
		sb.WriteString(fmt.Sprintf("- merged %d members into `%s` (%q)\n", len(c.OriginalIDs), f.truncateID(c.DerivedID), c.Title))
	}
	return sb.String()
}

func (f *Formatter) formatContextPack(result interface{}) string {
	p, ok := result.(contextpack.Pack)
	if !ok {
		return f.fallbackJSON(result)
	}
	return contextpack.Render(p)
}

func (f *Formatter) formatSessionSummary(result interface{}) string {
	data, ok := result.(struct {
		Session *model.Session         `json:"session"`
		Results []*engine.IngestResult `json:"results"`
	})
	if !ok {
		return f.fallbackJSON(result)
	}
	var sb strings.Builder
	if data.Session != nil {
		sb.WriteString(fmt.Sprintf("📝 **Session** `%s` — %d memories\n\n", f.truncateID(data.Session.ID), data.Session.MemoryCount))
	}
	for i, r := range data.Results {
		if r == nil || r.Memory == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("%d. [%s] `%s` %s\n", i+1, r.Decision, f.truncateID(r.Memory.ID), r.Memory.Title))
	}
	return sb.String()
}

func (f *Formatter) formatPerformance(duration time.Duration) string {
	ms := duration.Milliseconds()
	var speedIcon string
	switch {
	case ms < 100:
		speedIcon = "⚡"
	case ms < 500:
		speedIcon = "🚀"
	case ms < 1000:
		speedIcon = "✓"
	default:
		speedIcon = "🐢"
	}
	return fmt.Sprintf("%s *Completed in %dms*", speedIcon, ms)
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func (f *Formatter) makeProgressBar(value float64, width int) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * float64(width))
	empty := width - filled
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}

func (f *Formatter) truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:8] + "..."
}

func (f *Formatter) truncateContent(content string, maxLen int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen-3] + "..."
}

func (f *Formatter) fallbackJSON(result interface{}) string {
	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	return string(jsonBytes)
}
