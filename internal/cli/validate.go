package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/validate"
)

func newValidateCommand(a *app) *cobra.Command {
	var (
		reports    string
		sampleSize int
		threshold  int
	)
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Score a sample of articles for clinical content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := a.cfg.Output.DedupDirectory
			if len(args) == 1 {
				root = args[0]
			}
			if reports == "" {
				reports = a.cfg.Output.ReportsDirectory
			}
			opts := validate.Options{
				SampleSize:          a.cfg.Validation.SampleSize,
				LowQualityThreshold: a.cfg.Validation.LowQualityThreshold,
			}
			if cmd.Flags().Changed("sample-size") {
				if sampleSize < 1 {
					return domain.NewValidationError("sample-size", "must be at least 1")
				}
				opts.SampleSize = sampleSize
			}
			if cmd.Flags().Changed("threshold") {
				if threshold < 1 || threshold > 100 {
					return domain.NewValidationError("threshold", fmt.Sprintf("%d is outside 1..100", threshold))
				}
				opts.LowQualityThreshold = threshold
			}

			report, err := validate.New(opts, a.logger, a.metrics).Run(root, reports)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sample size:      %d of %d\n", report.SampleSize, report.TotalArticles)
			fmt.Fprintf(out, "With full text:   %d\n", report.ArticlesWithFullText)
			fmt.Fprintf(out, "Average score:    %.1f/100\n", report.AverageQualityScore)
			for _, bin := range []string{validate.BinExcellent, validate.BinGood, validate.BinFair, validate.BinPoor, validate.BinVeryPoor} {
				fmt.Fprintf(out, "  %-20s %d\n", bin, report.ScoreDistribution[bin])
			}
			fmt.Fprintf(out, "Low quality (<%d): %d\n", report.LowQualityThreshold, len(report.LowQualityArticles))
			fmt.Fprintf(out, "Report: %s\n", filepath.Join(reports, validate.ReportFile))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&reports, "reports", "", "report directory (default: output.reports_directory)")
	flags.IntVar(&sampleSize, "sample-size", 0, "number of articles to validate (default: validation.sample_size)")
	flags.IntVar(&threshold, "threshold", 0, "low quality score threshold (default: validation.low_quality_threshold)")
	return cmd
}
