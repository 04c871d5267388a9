// Package cli implements the litcollect command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/literature-collector/internal/config"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/papersources"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var _ papersources.RequestRecorder = (*observability.Metrics)(nil)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configFile  string
	logLevel    string
	logFormat   string
	metricsFile string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// newRootCommand builds the command tree around a.
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "litcollect",
		Short: "Collect, deduplicate, and catalog PubMed/PMC literature",
		Example: `litcollect collect --queries configs/queries/guidelines.yaml
litcollect collect --query '"sepsis"[MeSH Major Topic]' --name sepsis --max-results 50
litcollect dedup iter1=data/raw/iter1 iter2=data/raw/iter2
litcollect catalog data/processed/deduplicated
litcollect validate --sample-size 200`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	root.CompletionOptions.HiddenDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./config.yaml or ./configs/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (json, console, pretty)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(
		newCollectCommand(a),
		newDedupCommand(a),
		newCatalogCommand(a),
		newValidateCommand(a),
		newVersionCommand(),
	)
	return root
}

// setup loads configuration and builds the logger and metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.metricsFile != "" {
		cfg.Metrics.Textfile = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	var w io.Writer = cmd.ErrOrStderr()
	if strings.EqualFold(cfg.Logging.Output, "stdout") {
		w = cmd.OutOrStdout()
	}
	a.logger = observability.NewLoggerWithWriter(w, observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}).With().Str("command", cmd.Name()).Logger()
	a.metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	return nil
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() error {
	if a.metrics == nil || a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug().Str("path", a.cfg.Metrics.Textfile).Msg("metrics written")
	return nil
}

// Execute runs the command tree with args and writes metrics once the
// command returns, whether or not it failed.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.flushMetrics())
}
