package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/contextpack"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/retrieval"
	"github.com/agentmem/agentmem/internal/storage"
)

var (
	searchProject     string
	searchKind        string
	searchTags        []string
	searchTokenBudget int

	packTokens  int
	packProject string
	packKind    string
	packTags    []string
	packJSON    bool
	packOut     string

	chainDepth int
	chainTypes []string

	timelineProject string
	timelineSession string
	timelineLimit   int

	historyLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank memories against a query by fused similarity/keyword/recency/trust",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		q := retrieval.Query{Text: args[0], Filter: retrieval.Filter{ProjectID: searchProject, Tags: searchTags}}
		if searchKind != "" {
			q.Filter.Kind = model.ParseKind(searchKind)
		}
		scored, memories, err := eng.Search(context.Background(), q, searchTokenBudget)
		if err != nil {
			fatal("%v", err)
		}
		if len(memories) == 0 {
			fmt.Println("No matches.")
			return
		}
		for i, m := range memories {
			fmt.Printf("%d. %s  (score=%.3f)\n", i+1, m.Title, scored[i].Score)
			fmt.Printf("   %s\n", m.ID)
			fmt.Printf("   %s\n", truncateText(m.Content, 120))
		}
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain <id>",
	Short: "Follow the relation graph outward from a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		types := make([]model.RelationType, len(chainTypes))
		for i, t := range chainTypes {
			types[i] = model.ParseRelationType(t)
		}
		nodes, err := eng.FollowChain(args[0], chainDepth, types)
		if err != nil {
			fatal("%v", err)
		}
		if len(nodes) == 0 {
			fmt.Println("No related memories.")
			return
		}
		for _, n := range nodes {
			fmt.Printf("depth %d  %s  (%s)\n", n.Depth, n.Memory.Title, n.Relation.Type)
			fmt.Printf("   %s\n", n.Memory.ID)
		}
	},
}

var contextPackCmd = &cobra.Command{
	Use:   "context-pack <query>",
	Short: "Build a token-budgeted markdown context pack for a query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		q := retrieval.Query{Text: args[0], Filter: retrieval.Filter{ProjectID: packProject, Tags: packTags}}
		if packKind != "" {
			q.Filter.Kind = model.ParseKind(packKind)
		}
		budget := packTokens
		if budget <= 0 {
			budget = 2000
		}
		pack, err := eng.Context(context.Background(), q, budget, packProject)
		if err != nil {
			fatal("%v", err)
		}

		var out *os.File = os.Stdout
		if packOut != "" {
			f, err := os.Create(packOut)
			if err != nil {
				fatal("%v", err)
			}
			defer f.Close()
			out = f
		}

		if packJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(pack); err != nil {
				fatal("%v", err)
			}
			return
		}
		fmt.Fprint(out, contextpack.Render(pack))
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List memories chronologically, optionally scoped to a project or session",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		res, err := eng.Timeline(storage.TimelineFilter{
			ProjectID: timelineProject,
			SessionID: timelineSession,
			Limit:     timelineLimit,
		})
		if err != nil {
			fatal("%v", err)
		}
		for _, m := range res.Memories {
			fmt.Printf("%s  %s  [%s]  %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.ID, m.Kind, m.Title)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the audit log for a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		events, err := eng.History(args[0], historyLimit)
		if err != nil {
			fatal("%v", err)
		}
		for _, e := range events {
			fmt.Printf("%s  %-10s  %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Details)
		}
	},
}

func init() {
	RootCmd.AddCommand(searchCmd, chainCmd, contextPackCmd, timelineCmd, historyCmd)

	searchCmd.Flags().StringVar(&searchProject, "project", "", "filter by project id")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "filter by kind")
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "filter by tags")
	searchCmd.Flags().IntVar(&searchTokenBudget, "token-budget", 0, "truncate ranked results to this token budget (0 = untruncated)")

	chainCmd.Flags().IntVar(&chainDepth, "depth", 2, "traversal depth")
	chainCmd.Flags().StringSliceVar(&chainTypes, "types", nil, "restrict to these relation types")

	contextPackCmd.Flags().IntVar(&packTokens, "tokens", 2000, "token budget")
	contextPackCmd.Flags().StringVar(&packProject, "project", "", "project id")
	contextPackCmd.Flags().StringVar(&packKind, "kind", "", "filter by kind")
	contextPackCmd.Flags().StringSliceVar(&packTags, "tag", nil, "filter by tag")
	contextPackCmd.Flags().BoolVar(&packJSON, "json", false, "emit JSON instead of markdown")
	contextPackCmd.Flags().StringVarP(&packOut, "output", "o", "", "write to file instead of stdout")

	timelineCmd.Flags().StringVar(&timelineProject, "project", "", "filter by project id")
	timelineCmd.Flags().StringVar(&timelineSession, "session", "", "filter by session id")
	timelineCmd.Flags().IntVar(&timelineLimit, "limit", 50, "max results")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "max events")
}

func truncateText(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
