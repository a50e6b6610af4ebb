package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamland/sherlock/internal/knowledge"
)

var (
	syncFile       string
	syncAllowEmpty bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <source>",
	Short: "Reconcile a source feed against the knowledge base",
	Long: `Reads a JSON feed snapshot and reconciles it against the entries of
the given source: new keys are created, changed content is re-embedded
and updated, untouched content is skipped and keys absent from the feed
are deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), args[0])
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncFile, "file", "f", "", "JSON feed file (required)")
	syncCmd.Flags().BoolVar(&syncAllowEmpty, "allow-empty", false,
		"allow an empty feed to delete every entry of the source")
	_ = syncCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, source string) error {
	data, err := os.ReadFile(syncFile)
	if err != nil {
		return fmt.Errorf("reading feed file: %w", err)
	}

	var feed []knowledge.SyncEntry
	if err := json.Unmarshal(data, &feed); err != nil {
		return fmt.Errorf("parsing feed file: %w", err)
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := a.Service.Sync(ctx, source, feed, knowledge.SyncOptions{
		AllowEmpty: syncAllowEmpty,
	})
	if err != nil {
		return fmt.Errorf("syncing %s: %w", source, err)
	}

	fmt.Printf("Sync %s: %d created, %d updated, %d deleted, %d skipped\n",
		report.Source, report.Created, report.Updated, report.Deleted, report.Skipped)
	for _, e := range report.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
