package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a document for ingestion",
	Long: `Upload a PDF, DOCX, TXT, Markdown or HTML file.

The document is stored as pending and queued for parsing, chunking,
embedding and indexing. Use --wait to block until it is ready or failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var (
	uploadTitle      string
	uploadPermission string
	uploadType       string
	uploadWait       bool
)

func init() {
	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "Document title (defaults to the file name)")
	uploadCmd.Flags().StringVarP(&uploadPermission, "permission", "p", string(domain.PermissionPrivate),
		"Permission level: public, department or private")
	uploadCmd.Flags().StringVar(&uploadType, "type", "", "File type: pdf, docx, txt, md or html (inferred when empty)")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "Wait for ingestion to finish")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured("ingestion")
	}

	path := args[0]
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the user
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	permission, err := domain.ParsePermissionLevel(uploadPermission)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	doc, err := ingestionService.Upload(ctx, driving.UploadRequest{
		Filename:   filepath.Base(path),
		Content:    content,
		Title:      uploadTitle,
		SourceType: domain.SourceType(uploadType),
		Permission: permission,
	})
	if err != nil {
		return fmt.Errorf("failed to upload: %w", describeError(err))
	}

	cmd.Printf("Uploaded %s\n", doc.ID)
	cmd.Printf("  Title:      %s\n", doc.Title)
	cmd.Printf("  Type:       %s\n", doc.SourceType)
	cmd.Printf("  Permission: %s\n", doc.Permission)
	cmd.Printf("  Status:     %s\n", doc.Status)

	if !uploadWait {
		return nil
	}

	doc, err = ingestionService.Wait(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("waiting for ingestion: %w", err)
	}
	if doc.Status == domain.StatusFailed {
		return fmt.Errorf("ingestion failed: %s", doc.Error)
	}
	cmd.Printf("Ready: %d chunks indexed\n", doc.ChunkCount)
	return nil
}
