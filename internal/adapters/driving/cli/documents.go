package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "Manage uploaded documents",
	Long:    `List, inspect, delete or re-ingest uploaded documents and change their permission level.`,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsGet,
}

var documentsContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print the normalised document text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsContent,
}

var documentsChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "List a document's chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsChunks,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

var documentsRetryCmd = &cobra.Command{
	Use:   "retry [doc-id]",
	Short: "Re-run ingestion for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsRetry,
}

var documentsPermissionCmd = &cobra.Command{
	Use:   "permission [doc-id] [level]",
	Short: "Change a document's permission level",
	Long:  `Set the level to public, department or private. Indexed chunks are updated in place.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentsPermission,
}

var documentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the corpus",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsStats,
}

var (
	listStatus string
	listType   string
	listLimit  int
	listOffset int
)

func init() {
	documentsListCmd.Flags().StringVar(&listStatus, "status", "", "Only documents in this state")
	documentsListCmd.Flags().StringVar(&listType, "type", "", "Only documents of this file type")
	documentsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of documents (0 for all)")
	documentsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of documents to skip")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsGetCmd)
	documentsCmd.AddCommand(documentsContentCmd)
	documentsCmd.AddCommand(documentsChunksCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	documentsCmd.AddCommand(documentsRetryCmd)
	documentsCmd.AddCommand(documentsPermissionCmd)
	documentsCmd.AddCommand(documentsStatsCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	filter := domain.DocumentFilter{
		Status:     domain.DocumentStatus(listStatus),
		SourceType: domain.SourceType(listType),
		Limit:      listLimit,
		Offset:     listOffset,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, listStatus)
	}
	if filter.SourceType != "" && !filter.SourceType.IsValid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidInput, listType)
	}

	docs, err := documentService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:      %s\n", docs[i].Title)
		cmd.Printf("    Status:     %s\n", docs[i].Status)
		cmd.Printf("    Permission: %s\n", docs[i].Permission)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentsGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:      %s\n", doc.Title)
	cmd.Printf("  File:       %s\n", doc.Filename)
	cmd.Printf("  Type:       %s\n", doc.SourceType)
	cmd.Printf("  Size:       %d bytes\n", doc.Size)
	cmd.Printf("  Permission: %s\n", doc.Permission)
	cmd.Printf("  Status:     %s\n", doc.Status)
	cmd.Printf("  Chunks:     %d\n", doc.ChunkCount)
	if doc.Error != "" {
		cmd.Printf("  Error:      %s\n", doc.Error)
	}
	cmd.Printf("  Created:    %s\n", doc.CreatedAt.Format(timeLayout))
	cmd.Printf("  Updated:    %s\n", doc.UpdatedAt.Format(timeLayout))
	if doc.IndexedAt != nil {
		cmd.Printf("  Indexed:    %s\n", doc.IndexedAt.Format(timeLayout))
	}

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Println("\n  Metadata:")
		for _, k := range keys {
			cmd.Printf("    %s: %v\n", k, doc.Metadata[k])
		}
	}

	return nil
}

func runDocumentsContent(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	content, err := documentService.GetContent(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}

	cmd.Println(content)
	return nil
}

func runDocumentsChunks(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	chunks, err := documentService.GetChunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	for _, c := range chunks {
		cmd.Printf("#%d [%d:%d] %s\n", c.Position, c.Start, c.End, truncate(c.Content, 120))
	}
	cmd.Printf("Total: %d chunks\n", len(chunks))
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document: %s\n", args[0])
	return nil
}

func runDocumentsRetry(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured("ingestion")
	}

	doc, err := ingestionService.Retry(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to retry document: %w", err)
	}

	cmd.Printf("Re-queued document: %s (%s)\n", doc.ID, doc.Status)
	return nil
}

func runDocumentsPermission(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	level, err := domain.ParsePermissionLevel(args[1])
	if err != nil {
		return err
	}

	doc, err := documentService.ChangePermission(cmd.Context(), args[0], level)
	if err != nil {
		return fmt.Errorf("failed to change permission: %w", err)
	}

	cmd.Printf("Document %s is now %s\n", doc.ID, doc.Permission)
	return nil
}

func runDocumentsStats(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	stats, err := documentService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Printf("Documents:  %d\n", stats.Documents)
	statuses := make([]string, 0, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		statuses = append(statuses, fmt.Sprintf("%s=%d", status, n))
	}
	sort.Strings(statuses)
	if len(statuses) > 0 {
		cmd.Printf("  %s\n", strings.Join(statuses, " "))
	}
	cmd.Printf("Vectors:    %d (%d dimensions)\n", stats.Vectors, stats.Dimensions)
	cmd.Printf("Ingestion:  %d workers, %d queued, %d in flight, %d processed, %d failed\n",
		stats.Ingestion.Workers, stats.Ingestion.Queued, stats.Ingestion.InFlight,
		stats.Ingestion.Processed, stats.Ingestion.Failed)
	return nil
}
