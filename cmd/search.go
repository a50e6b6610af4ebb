package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreamland/sherlock/internal/knowledge"
)

var (
	searchLimit    int
	searchCategory string
	searchSource   string
	searchNoExpand bool
)

var searchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Semantic search over the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict to a category id")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to a source")
	searchCmd.Flags().BoolVar(&searchNoExpand, "no-expand", false, "skip hypothetical-answer expansion")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(ctx context.Context, question string) error {
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	limit := searchLimit
	if limit == 0 {
		limit = a.Config.SearchLimit
	}

	results, err := a.Service.Search(ctx, question, knowledge.SearchOptions{
		Limit:      limit,
		CategoryID: searchCategory,
		Source:     searchSource,
		NoExpand:   searchNoExpand,
	})
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, res := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, res.Score, res.Entry.Title, res.Entry.ID)
		if res.Entry.Section != "" {
			fmt.Printf("   section: %s\n", res.Entry.Section)
		}
		fmt.Printf("   %s\n", res.Entry.Content)
	}
	return nil
}
