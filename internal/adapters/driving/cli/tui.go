package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch an interactive terminal interface to ask questions and browse
documents.

Answers list their sources; select one to read the document it came from.
Follow-up questions stay in the same conversation until you start a new one.

Controls:
  ↑/k, ↓/j  navigate
  enter     ask / select
  /         follow-up question
  n         new conversation
  esc       back
  ctrl+c    quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

var tuiScope string

func init() {
	tuiCmd.Flags().StringVarP(&tuiScope, "scope", "s", fullScopeFlag, "Readable permission levels, comma separated")
	rootCmd.AddCommand(tuiCmd)
}

// newTUI builds the TUI from the injected services.
func newTUI(cmd *cobra.Command) (*tui.App, error) {
	if queryService == nil {
		return nil, errNotConfigured("query")
	}
	if documentService == nil {
		return nil, errNotConfigured("document")
	}

	scope, err := parseScopeFlag(tuiScope)
	if err != nil {
		return nil, err
	}

	app, err := tui.NewApp(&tui.Ports{
		Query:     queryService,
		Document:  documentService,
		Ingestion: ingestionService,
		Scope:     scope,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TUI: %w", err)
	}
	return app.WithContext(cmd.Context()), nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	app, err := newTUI(cmd)
	if err != nil {
		return err
	}
	resumeIngestion(cmd)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
