package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
)

var (
	saveKind       string
	saveTags       []string
	saveImportance float64
	savePrivacy    string
	saveProject    string
	saveRelatedTo  []string

	updateContent    string
	updateSummary    string
	updateImportance float64
	updateTags       []string
	updateStatus     string
	updatePrivacy    string

	listLimit   int
	listOffset  int
	listProject string
	listKind    string
	listStatus  string
)

var saveCmd = &cobra.Command{
	Use:   "save <title> <content>",
	Short: "Store a new memory",
	Long: `Store a new memory. The dedup engine checks it against existing
memories first: a near-identical memory is skipped, a close variant is
merged in place, and a flat contradiction is flagged rather than stored
blind.

Examples:
  agentmem save "Auth flow" "Use short-lived JWTs with refresh rotation" --kind decision --tags auth,security
  agentmem save "Flaky test" "TestRetry fails under -race" --kind observation --importance 0.6`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		draft := &model.Memory{
			Title:      args[0],
			Content:    args[1],
			Kind:       model.ParseKind(saveKind),
			Tags:       saveTags,
			Importance: saveImportance,
			Privacy:    model.ParsePrivacy(savePrivacy),
			ProjectID:  saveProject,
		}
		result, err := eng.SaveMemory(context.Background(), draft, saveRelatedTo)
		if err != nil {
			fatal("%v", err)
		}

		switch result.Decision {
		case "skip":
			fmt.Printf("Skipped: an existing memory already covers this (%s)\n", result.Memory.ID)
		case "update":
			fmt.Printf("Merged into existing memory %s\n", result.Memory.ID)
		case "contradict":
			fmt.Printf("Stored %s, flagged as contradicting an existing memory\n", result.Memory.ID)
		default:
			fmt.Printf("Stored %s\n", result.Memory.ID)
		}
		if result.Reason != "" {
			fmt.Printf("  reason: %s\n", result.Reason)
		}
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>...",
	Short: "Fetch memories by id",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		memories, err := eng.GetMemories(args)
		if err != nil {
			fatal("%v", err)
		}
		for i, m := range memories {
			if i > 0 {
				fmt.Println("---")
			}
			printMemory(m)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories newest first",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		f := storage.TimelineFilter{
			ProjectID: listProject,
			Limit:     listLimit,
			Offset:    listOffset,
		}
		if listKind != "" {
			f.Kind = model.ParseKind(listKind)
		}
		if listStatus != "" {
			f.Status = model.ParseStatus(listStatus)
		}
		res, err := eng.Timeline(f)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%d memories\n\n", len(res.Memories))
		for _, m := range res.Memories {
			fmt.Printf("%s  [%s/%s]  %s\n", m.ID, m.Kind, m.Status, m.Title)
		}
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Patch a memory's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		patch := storage.MemoryPatch{}
		if cmd.Flags().Changed("content") {
			patch.Content = &updateContent
		}
		if cmd.Flags().Changed("summary") {
			patch.Summary = &updateSummary
		}
		if cmd.Flags().Changed("importance") {
			patch.Importance = &updateImportance
		}
		if cmd.Flags().Changed("tags") {
			tags := model.NormalizeTags(updateTags)
			patch.Tags = &tags
		}
		if cmd.Flags().Changed("status") {
			st := model.ParseStatus(updateStatus)
			patch.Status = &st
		}
		if cmd.Flags().Changed("privacy") {
			pr := model.ParsePrivacy(updatePrivacy)
			patch.Privacy = &pr
		}

		m, err := eng.UpdateMemory(args[0], patch)
		if err != nil {
			fatal("%v", err)
		}
		printMemory(m)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		if err := eng.DeleteMemory(args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
}

func init() {
	RootCmd.AddCommand(saveCmd, getCmd, listCmd, updateCmd, forgetCmd)

	saveCmd.Flags().StringVar(&saveKind, "kind", "observation", "memory kind")
	saveCmd.Flags().StringSliceVar(&saveTags, "tags", nil, "comma-separated tags")
	saveCmd.Flags().Float64Var(&saveImportance, "importance", 0.5, "importance in [0,1]")
	saveCmd.Flags().StringVar(&savePrivacy, "privacy", "private", "privacy tier: public, team, private")
	saveCmd.Flags().StringVar(&saveProject, "project", "", "project id")
	saveCmd.Flags().StringSliceVar(&saveRelatedTo, "related-to", nil, "ids to relate this memory to")

	updateCmd.Flags().StringVar(&updateContent, "content", "", "new content")
	updateCmd.Flags().StringVar(&updateSummary, "summary", "", "new summary")
	updateCmd.Flags().Float64Var(&updateImportance, "importance", 0, "new importance")
	updateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "new tags")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status")
	updateCmd.Flags().StringVar(&updatePrivacy, "privacy", "", "new privacy tier")

	listCmd.Flags().IntVar(&listLimit, "limit", 50, "max results")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "pagination offset")
	listCmd.Flags().StringVar(&listProject, "project", "", "filter by project id")
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
}

func printMemory(m *model.Memory) {
	fmt.Printf("%s  [%s/%s/%s]\n", m.ID, m.Kind, m.Status, m.Privacy)
	fmt.Printf("  %s\n", m.Title)
	fmt.Printf("  %s\n", m.Content)
	if len(m.Tags) > 0 {
		fmt.Printf("  tags: %s\n", strings.Join(m.Tags, ", "))
	}
	fmt.Printf("  importance=%.2f verification=%s created=%s\n",
		m.Importance, m.Verification, m.CreatedAt.Format("2006-01-02 15:04"))
}
