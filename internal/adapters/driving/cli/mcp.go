package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/adapters/driving/mcp"
	"github.com/custodia-labs/kb/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the tools ask, search and list_documents, and the
resources kb://documents, kb://documents/{id} and kb://conversations/{id}.
The assistant can only read the permission levels granted with --scope.

By default the server speaks JSON-RPC over stdio. Use --http to serve the
streamable HTTP transport instead.

Examples:
  # Stdio mode (for desktop assistants)
  kb mcp --scope public,department

  # HTTP mode (for MCP Inspector, remote access)
  kb mcp --http :8090

Assistant configuration:
  {
    "mcpServers": {
      "kb": {
        "command": "/path/to/kb",
        "args": ["mcp", "--scope", "public"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

var (
	mcpHTTPAddr string
	mcpScope    string
)

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	mcpCmd.Flags().StringVarP(&mcpScope, "scope", "s", string(domain.PermissionPublic), "Permission levels granted to the assistant")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	scope, err := parseScopeFlag(mcpScope)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Query:        queryService,
		Document:     documentService,
		Conversation: conversationService,
		Scope:        scope,
	}, mcp.WithVersion(version))
	if err != nil {
		return err
	}

	resumeIngestion(cmd)
	if mcpHTTPAddr != "" {
		cmd.PrintErrf("MCP server listening on %s\n", mcpHTTPAddr)
		return server.RunHTTP(cmd.Context(), mcpHTTPAddr)
	}
	return server.Run(cmd.Context())
}
