package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reembedSource string

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Regenerate embedding vectors for stored entries",
	Long: `Re-embeds stored entries and rewrites their vectors. Use after
changing the embedding model or to repair entries whose vector write
failed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReembed(cmd.Context())
	},
}

func init() {
	reembedCmd.Flags().StringVar(&reembedSource, "source", "", "restrict to a source (default all)")
	rootCmd.AddCommand(reembedCmd)
}

func runReembed(ctx context.Context) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	count, err := a.Service.Reembed(ctx, reembedSource)
	if err != nil {
		return fmt.Errorf("re-embedding: %w", err)
	}
	fmt.Printf("Re-embedded %d entries\n", count)
	return nil
}
