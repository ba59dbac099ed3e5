package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/model"
	"github.com/agentmem/agentmem/internal/storage"
	"github.com/agentmem/agentmem/pkg/config"
)

var demoClean bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config directory and an empty store",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		if err := cfg.EnsureStorageDir(); err != nil {
			fatal("%v", err)
		}
		db, err := storage.Open(cfg.Storage.Path, cfg.Embedding.Dimensions)
		if err != nil {
			fatal("%v", err)
		}
		db.Close()
		fmt.Printf("Initialized store at %s\n", cfg.Storage.Path)
		fmt.Printf("Config directory: %s\n", config.ConfigDir())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report config and store health",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println("Configuration")
		fmt.Printf("  storage:    %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
		fmt.Printf("  embedding:  %s (%d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Dimensions)
		fmt.Printf("  llm judge:  %s\n", cfg.LLM.Provider)
		fmt.Printf("  rest api:   enabled=%v %s:%d\n", cfg.RestAPI.Enabled, cfg.RestAPI.Host, cfg.RestAPI.Port)

		if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
			fmt.Println("\nStore: not initialized (run `agentmem init`)")
			return
		}

		eng, err := engine.New(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		res, err := eng.Timeline(storage.TimelineFilter{CountOnly: true})
		if err != nil {
			fatal("%v", err)
		}
		report, err := eng.IntegrityCheck()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("\nStore: %d memories, integrity clean=%v\n", res.Count, report.Clean())
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed a handful of related memories end to end",
	Long: `demo exercises the whole ingest path -- store, embed, dedup, and
auto-relate -- against a small fixed scenario: a bug observation, the fix
that resolved it, and a decision that followed from it, all in the same
session so the session-thread heuristic links them.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		if demoClean {
			if err := os.Remove(cfg.Storage.Path); err != nil && !os.IsNotExist(err) {
				fatal("%v", err)
			}
			if err := cfg.EnsureStorageDir(); err != nil {
				fatal("%v", err)
			}
		}

		eng, err := engine.New(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		ctx := context.Background()
		sessionID := "demo-session"
		drafts := []*model.Memory{
			{Title: "Flaky retry test", Content: "TestRetryBackoff intermittently times out under -race", Kind: model.KindObservation},
			{Title: "Root cause found", Content: "The backoff jitter used a shared rand.Rand without a mutex", Kind: model.KindError},
			{Title: "Fixed shared rand access", Content: "Switched to a per-goroutine rand.Rand seeded from crypto/rand", Kind: model.KindFix},
			{Title: "Adopt per-goroutine RNGs", Content: "Decided to standardize on per-goroutine RNGs for anything touched concurrently", Kind: model.KindDecision},
		}
		for _, d := range drafts {
			d.SessionID = sessionID
			result, err := eng.SaveMemory(ctx, d, nil)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%-10s %s  %s\n", result.Decision, result.Memory.ID, result.Memory.Title)
		}
		fmt.Println("\nTry: agentmem chain <id>  or  agentmem search \"race condition\"")
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal browser (not implemented)",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("The interactive terminal browser is not part of this build.")
		fmt.Println("Use `agentmem list`, `agentmem search`, and `agentmem chain` instead.")
	},
}

func init() {
	RootCmd.AddCommand(initCmd, statusCmd, demoCmd, tuiCmd)
	demoCmd.Flags().BoolVar(&demoClean, "clean", false, "wipe the existing store before seeding")
}
