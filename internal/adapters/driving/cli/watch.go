package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/adapters/driving/watch"
	"github.com/custodia-labs/kb/internal/core/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload files dropped into a directory",
	Long: `Watch a directory and upload every supported file written into it.

Hidden files and unsupported extensions are ignored. A file is uploaded
once its writes have been quiet for the debounce period; rewriting it
later uploads the new version as a new document.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchPermission string
	watchDebounce   time.Duration
	watchExisting   bool
)

func init() {
	watchCmd.Flags().StringVarP(&watchPermission, "permission", "p", string(domain.PermissionPrivate),
		"Permission level for uploaded documents")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before upload")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Also upload files already in the directory")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured("ingestion")
	}

	permission, err := domain.ParsePermissionLevel(watchPermission)
	if err != nil {
		return err
	}

	w, err := watch.New(args[0], ingestionService,
		watch.WithPermission(permission),
		watch.WithDebounce(watchDebounce),
		watch.WithExisting(watchExisting),
		watch.WithOnUpload(func(path string, doc *domain.Document, err error) {
			if err != nil {
				cmd.PrintErrf("%s: %v\n", path, err)
				return
			}
			cmd.Printf("%s -> %s\n", path, doc.ID)
		}),
	)
	if err != nil {
		return err
	}

	resumeIngestion(cmd)
	cmd.Printf("Watching %s (Ctrl-C to stop)\n", w.Dir())
	return w.Run(cmd.Context())
}
