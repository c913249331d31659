package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find passages without generating an answer",
	Long: `Embed the query and return the most similar chunks the scope may read,
ranked by cosine similarity or by the reranker when --rerank is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchTopK      int
	searchThreshold float64
	searchRerank    bool
	searchScope     string
	searchJSON      bool
)

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "Maximum number of passages (0 uses the configured default)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "Minimum cosine similarity")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "Re-score candidates")
	searchCmd.Flags().StringVarP(&searchScope, "scope", "s", fullScopeFlag, "Readable permission levels, comma separated")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	scope, err := parseScopeFlag(searchScope)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	sources, err := queryService.Search(cmd.Context(), query, domain.RetrieveOptions{
		Scope:          scope,
		TopK:           searchTopK,
		ScoreThreshold: searchThreshold,
		UseRerank:      searchRerank,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", describeError(err))
	}

	if searchJSON {
		return printJSON(cmd, sources)
	}

	if len(sources) == 0 {
		cmd.Printf("No results found for: %s\n", query)
		return nil
	}

	cmd.Printf("Found %d results for: %s\n\n", len(sources), query)
	for i, src := range sources {
		title := src.DocumentTitle
		if title == "" {
			title = src.DocumentID
		}
		cmd.Printf("%d. %s (score %.3f)\n", i+1, title, src.RankScore())
		cmd.Printf("   document %s, chunk %d [%d:%d]\n", src.DocumentID, src.Position, src.Start, src.End)
		if src.Content != "" {
			cmd.Printf("   %s\n", truncate(src.Content, 200))
		}
		cmd.Println()
	}
	return nil
}

// truncate shortens s to at most n runes and flattens whitespace.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
