package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/literature-collector/internal/catalog"
)

func newCatalogCommand(a *app) *cobra.Command {
	var (
		reports string
		preview int
	)
	cmd := &cobra.Command{
		Use:   "catalog [dir]",
		Short: "Export a CSV catalog of a collection",
		Long: `Builds one row per metadata file under dir (default: output.dedup_directory)
and writes the full catalog, a simplified catalog, and catalog_summary.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.cfg.Output.DedupDirectory
			if len(args) == 1 {
				root = args[0]
			}
			if reports == "" {
				reports = a.cfg.Output.ReportsDirectory
			}

			c, err := catalog.New(a.logger, a.metrics).Build(root)
			if err != nil {
				return err
			}
			files, summary, err := catalog.Export(c, reports)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if preview > 0 {
				if err := catalog.WritePreview(out, c.Rows, preview); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Articles: %d (full text %.1f%%, skipped %d)\n",
				summary.TotalArticles, summary.FullTextCoverage, summary.SkippedFiles)
			fmt.Fprintf(out, "Catalog:    %s\n", files.Catalog)
			fmt.Fprintf(out, "Simplified: %s\n", files.Simplified)
			fmt.Fprintf(out, "Summary:    %s\n", files.Summary)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&reports, "reports", "", "report directory (default: output.reports_directory)")
	flags.IntVar(&preview, "preview", 20, "print the first N rows; 0 disables")
	return cmd
}
