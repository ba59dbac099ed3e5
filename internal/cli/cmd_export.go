package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/model"
)

var (
	exportOut     string
	exportPrivacy string
	exportScrub   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export memories at or above a privacy tier to a JSON file",
	Run: func(cmd *cobra.Command, args []string) {
		if exportOut == "" {
			misuse("export requires -o FILE")
		}
		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		data, matches, err := eng.Export(model.ParsePrivacy(exportPrivacy), exportScrub)
		if err != nil {
			fatal("%v", err)
		}
		if err := os.WriteFile(exportOut, data, 0644); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Wrote %s\n", exportOut)
		if exportScrub && len(matches) > 0 {
			fmt.Printf("Redacted %d PII match(es)\n", len(matches))
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import memories from a previously exported JSON file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fatal("%v", err)
		}

		eng, err := openEngine()
		if err != nil {
			fatal("%v", err)
		}
		defer eng.Close()

		n, err := eng.Import(context.Background(), data)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Imported %d memories\n", n)
	},
}

func init() {
	RootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file path")
	exportCmd.Flags().StringVar(&exportPrivacy, "privacy", "public", "minimum privacy tier to include: public, team, private")
	exportCmd.Flags().BoolVar(&exportScrub, "scrub", false, "redact PII patterns from title/content/summary")
}
