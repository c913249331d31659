package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/adapters/driving/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve uploads, chat, search, document management and conversation
history as JSON over HTTP under /api/v1.

The listen address defaults to server.addr from the settings.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from settings)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	server, err := httpapi.NewServer(&httpapi.Ports{
		Ingestion:    ingestionService,
		Document:     documentService,
		Query:        queryService,
		Conversation: conversationService,
	})
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" && settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			addr = settings.Server.Addr
		}
	}
	if addr == "" {
		addr = ":8080"
	}

	resumeIngestion(cmd)
	cmd.Printf("Serving HTTP API on %s\n", addr)
	return server.Run(cmd.Context(), addr)
}
