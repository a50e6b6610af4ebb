package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamland/sherlock/internal/knowledge"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import knowledge drafts from a JSON file",
	Long: `Reads an array of drafts ({"title", "content", ...}) and imports them,
skipping any whose content already exists in the knowledge base.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context())
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "JSON drafts file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(ctx context.Context) error {
	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("reading drafts file: %w", err)
	}

	var drafts []knowledge.Draft
	if err := json.Unmarshal(data, &drafts); err != nil {
		return fmt.Errorf("parsing drafts file: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := a.Service.Import(ctx, drafts)
	if err != nil {
		return fmt.Errorf("importing drafts: %w", err)
	}

	fmt.Printf("Import: %d created, %d skipped\n", report.Created, report.Skipped)
	for _, e := range report.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
