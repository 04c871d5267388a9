package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/literature-collector/internal/dedup"
	"github.com/helixir/literature-collector/internal/domain"
)

func newDedupCommand(a *app) *cobra.Command {
	var (
		output  string
		reports string
		clean   bool
	)
	cmd := &cobra.Command{
		Use:   "dedup [name=]dir...",
		Short: "Merge collection runs into one record per PMID",
		Long: `Scans each input directory for metadata files and writes one merged
record per PMID, annotated with the runs it appeared in. The first occurrence
in argument order supplies the metadata. An input without a name is named
after its directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(args)
			if err != nil {
				return err
			}
			if output == "" {
				output = a.cfg.Output.DedupDirectory
			}
			if reports == "" {
				reports = a.cfg.Output.ReportsDirectory
			}

			d := dedup.New(dedup.Options{ReportDir: reports, Clean: clean}, a.logger, a.metrics)
			report, err := d.Run(inputs, output)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total articles found:  %d\n", report.TotalArticlesFound)
			fmt.Fprintf(out, "Unique articles:       %d\n", report.UniqueArticles)
			fmt.Fprintf(out, "Duplicate instances:   %d\n", report.DuplicateInstances)
			fmt.Fprintf(out, "With full text:        %d (%.1f%%)\n", report.ArticlesWithFullText, report.FullTextCoverage)
			if n := len(report.PossibleDuplicates); n > 0 {
				fmt.Fprintf(out, "Possible duplicates:   %d (see %s)\n", n, filepath.Join(reports, dedup.ReportFile))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "merged output directory (default: output.dedup_directory)")
	flags.StringVar(&reports, "reports", "", "report directory (default: output.reports_directory)")
	flags.BoolVar(&clean, "clean", false, "remove previously merged records first")
	return cmd
}

// parseInputs reads "name=dir" or "dir" arguments.
func parseInputs(args []string) ([]dedup.Input, error) {
	inputs := make([]dedup.Input, 0, len(args))
	for _, arg := range args {
		name, root, ok := strings.Cut(arg, "=")
		if !ok {
			root = arg
			name = filepath.Base(filepath.Clean(arg))
		}
		name, root = strings.TrimSpace(name), strings.TrimSpace(root)
		if name == "" || root == "" {
			return nil, domain.NewValidationError("input", fmt.Sprintf("invalid input %q, want name=dir or dir", arg))
		}
		inputs = append(inputs, dedup.Input{Name: name, Root: root})
	}
	return inputs, nil
}
