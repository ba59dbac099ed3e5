package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/model"
)

var (
	verifyStatus string

	pruneDays            int
	pruneDecayImportance bool
	pruneDryRun          bool

	reembedBatchSize int
	reembedForce     bool
	reembedDryRun    bool

	consolidateDryRun bool

	assessCheckDuplicates bool
	assessLimit           int

	checkRepair bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Set a memory's verification status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if verifyStatus == "" {
			misuse("verify requires --status")
		}
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		m, err := eng.VerifyMemory(args[0], model.ParseVerification(verifyStatus))
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s is now %s\n", m.ID, m.Verification)
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Archive memories that haven't been accessed in a while",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		result, err := eng.PruneStale(pruneDays, pruneDecayImportance, pruneDryRun)
		if err != nil {
			fatal("%v", err)
		}
		verb := "Archived"
		if pruneDryRun {
			verb = "Would archive"
		}
		fmt.Printf("%s %d of %d scanned memories\n", verb, result.Archived, result.Scanned)
	},
}

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Re-embed active memories after an embedder/model change",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		result, err := eng.Reembed(context.Background(), reembedBatchSize, reembedForce, reembedDryRun)
		if err != nil {
			fatal("%v", err)
		}
		verb := "Re-embedded"
		if reembedDryRun {
			verb = "Would re-embed"
		}
		fmt.Printf("%s %d of %d scanned (%d failed)\n", verb, result.Reembedded, result.Scanned, result.Failed)
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Cluster and merge similar aged memories into derived summaries",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		clusters, err := eng.RunConsolidate(context.Background(), consolidateDryRun)
		if err != nil {
			fatal("%v", err)
		}
		if len(clusters) == 0 {
			fmt.Println("No clusters found.")
			return
		}
		for _, c := range clusters {
			if c.DryRun {
				fmt.Printf("Would merge %d memories into %q\n", len(c.OriginalIDs), c.Title)
			} else {
				fmt.Printf("Merged %d memories into %s (%q)\n", len(c.OriginalIDs), c.DerivedID, c.Title)
			}
		}
	},
}

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Report quality issues and trust scores across active memories",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		results, err := eng.Assess(assessCheckDuplicates, assessLimit)
		if err != nil {
			fatal("%v", err)
		}
		if len(results) == 0 {
			fmt.Println("No active memories to assess.")
			return
		}
		for _, a := range results {
			fmt.Printf("%s  trust=%.2f quality=%.2f  %v\n", a.MemoryID, a.TrustScore, a.QualityScore, a.Issues)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan the store for integrity violations",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		report, err := eng.IntegrityCheck()
		if err != nil {
			fatal("%v", err)
		}
		if report.Clean() {
			fmt.Println("OK: store is consistent")
		} else {
			fmt.Printf("FOUND ISSUES:\n")
			fmt.Printf("  orphaned embeddings: %d\n", len(report.OrphanedEmbeddings))
			fmt.Printf("  dangling relations: %d\n", report.DanglingRelations)
			fmt.Printf("  memories without embeddings: %d\n", len(report.MemoriesWithoutEmbed))
			fmt.Printf("  vec index rows: %d (embeddings rows: %d)\n", report.VecIndexRowCount, report.EmbeddingsRowCount)
		}

		if checkRepair {
			result, err := eng.Repair(context.Background())
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("Repair: re-ran auto-relate for %d memories, rebuilt vec index: %v\n",
				result.AutoRelateReran, result.VecIndexRebuilt)
		}
	},
}

func init() {
	RootCmd.AddCommand(verifyCmd, pruneCmd, reembedCmd, consolidateCmd, assessCmd, checkCmd)

	verifyCmd.Flags().StringVar(&verifyStatus, "status", "", "unverified, verified, disputed, or outdated")

	pruneCmd.Flags().IntVar(&pruneDays, "days", 90, "archive memories not accessed in this many days")
	pruneCmd.Flags().BoolVar(&pruneDecayImportance, "decay-importance", false, "halve importance on archival")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would be archived without writing")

	reembedCmd.Flags().IntVar(&reembedBatchSize, "batch-size", 50, "memories per batch")
	reembedCmd.Flags().BoolVar(&reembedForce, "force", false, "re-embed every active memory, not just dimension mismatches")
	reembedCmd.Flags().BoolVar(&reembedDryRun, "dry-run", false, "report what would be re-embedded without writing")

	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "report clusters without merging")

	assessCmd.Flags().BoolVar(&assessCheckDuplicates, "check-duplicates", false, "cross-check near-duplicate embeddings")
	assessCmd.Flags().IntVar(&assessLimit, "limit", 200, "max memories to assess")

	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "re-run auto-relate and rebuild the vec index if needed")
}
