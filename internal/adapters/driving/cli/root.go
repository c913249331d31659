// Package cli provides the kb command line interface built with cobra.
//
// Commands talk to the core through driving ports only. The composition
// root injects the services with SetServices before calling Execute.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

var (
	verbose bool
	logFile string
)

// Injected services. Commands report "not configured" when theirs is nil.
var (
	ingestionService    driving.IngestionService
	documentService     driving.DocumentService
	queryService        driving.QueryService
	conversationService driving.ConversationService
	settingsService     driving.SettingsService

	resume func(ctx context.Context) (int, error)
)

// Services bundles the driving ports used by the CLI.
type Services struct {
	Ingestion    driving.IngestionService
	Document     driving.DocumentService
	Query        driving.QueryService
	Conversation driving.ConversationService
	Settings     driving.SettingsService

	// Resume re-queues interrupted ingestion jobs. Only long-running
	// commands call it, so a short command never picks up jobs another
	// process owns.
	Resume func(ctx context.Context) (int, error)
}

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Retrieval-augmented knowledge base",
	Long: `kb ingests documents, indexes them as embedded chunks and answers
questions with citations to the passages it used.

Upload files with 'kb upload', ask with 'kb ask', and serve the same
operations over HTTP with 'kb serve' or to AI assistants with 'kb mcp'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if logFile != "" {
			if err := logger.SetLogFile(logFile); err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
}

// SetServices injects the driving ports.
func SetServices(s Services) {
	ingestionService = s.Ingestion
	documentService = s.Document
	queryService = s.Query
	conversationService = s.Conversation
	settingsService = s.Settings
	resume = s.Resume
}

// SetVersion sets the version reported by 'kb version'.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// ExecuteContext runs the root command with ctx, which commands see as
// cmd.Context().
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// resumeIngestion queues documents an earlier run left unfinished.
func resumeIngestion(cmd *cobra.Command) {
	if resume == nil {
		return
	}
	n, err := resume(cmd.Context())
	if err != nil {
		logger.Warn("Resuming ingestion: %v", err)
		return
	}
	if n > 0 {
		cmd.PrintErrf("Resumed %d interrupted documents\n", n)
	}
}

// errNotConfigured reports a service the composition root could not build.
func errNotConfigured(name string) error {
	return fmt.Errorf("%s service not configured (check 'kb settings show')", name)
}

// parseScopeFlag parses a comma separated list of permission levels.
func parseScopeFlag(value string) (domain.Scope, error) {
	scope, err := domain.ParseScope([]string{value})
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return nil, fmt.Errorf("%w: empty permission scope", domain.ErrPermissionDenied)
	}
	return scope, nil
}

// describeError adds a hint for errors a user can act on.
func describeError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return fmt.Errorf("%w (widen --scope)", err)
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrLLMUnavailable):
		return fmt.Errorf("%w (run 'kb settings show' to check providers)", err)
	case domain.IsRetryable(err):
		return fmt.Errorf("%w (temporary failure, try again)", err)
	default:
		return err
	}
}
