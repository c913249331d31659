package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// fullScopeFlag is the default --scope for local commands.
const fullScopeFlag = "public,department,private"

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about your documents",
	Long: `Retrieve the passages most relevant to a question and generate an answer
that cites them as [n].

Pass --conversation to continue an earlier exchange; the previous turns are
included in the prompt. Without one a new conversation is started and its
ID is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askConversation string
	askTopK         int
	askThreshold    float64
	askRerank       bool
	askScope        string
	askJSON         bool
)

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "Conversation ID to continue")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Maximum number of sources (0 uses the configured default)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "Minimum cosine similarity (default from settings)")
	askCmd.Flags().BoolVar(&askRerank, "rerank", false, "Re-score candidates before answering")
	askCmd.Flags().StringVarP(&askScope, "scope", "s", fullScopeFlag, "Readable permission levels, comma separated")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	scope, err := parseScopeFlag(askScope)
	if err != nil {
		return err
	}

	req := driving.AskRequest{
		Query:          strings.Join(args, " "),
		ConversationID: askConversation,
		TopK:           askTopK,
		UseRerank:      askRerank,
		Scope:          scope,
	}
	if cmd.Flags().Changed("threshold") {
		threshold := askThreshold
		req.ScoreThreshold = &threshold
	}

	resp, err := queryService.Ask(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to answer: %w", describeError(err))
	}

	if askJSON {
		return printJSON(cmd, resp)
	}

	cmd.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		printSources(cmd, resp.Sources)
	}
	cmd.Printf("\nConversation: %s\n", resp.ConversationID)
	return nil
}

func printSources(cmd *cobra.Command, sources []domain.Source) {
	for i, src := range sources {
		title := src.DocumentTitle
		if title == "" {
			title = src.DocumentID
		}
		cmd.Printf("  [%d] %s (chunk %d, score %.3f)\n", i+1, title, src.Position, src.RankScore())
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
