package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string

	// NoColor disables ANSI colors in console output.
	NoColor bool
}

// DefaultLoggingConfig returns a LoggingConfig suited to interactive CLI use.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stderr
	}

	return NewLoggerWithWriter(output, cfg)
}

// NewLoggerWithWriter creates a logger writing to w; Output is ignored.
func NewLoggerWithWriter(w io.Writer, cfg LoggingConfig) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	if f := strings.ToLower(cfg.Format); f == "console" || f == "pretty" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.NoColor,
		}
	}

	logger := zerolog.New(w).With().Timestamp()
	if cfg.AddSource {
		logger = logger.Caller()
	}

	level := parseLevel(cfg.Level)
	return logger.Logger().Level(level)
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRunContext adds the collection run identifier to a logger.
func WithRunContext(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Logger()
}

// WithQueryContext adds query fields to a logger.
func WithQueryContext(logger zerolog.Logger, queryName string, maxResults int) zerolog.Logger {
	return logger.With().
		Str("query", queryName).
		Int("max_results", maxResults).
		Logger()
}

// WithArticleContext adds article identifiers to a logger.
func WithArticleContext(logger zerolog.Logger, pmid, pmcid string) zerolog.Logger {
	ctx := logger.With().Str("pmid", pmid)
	if pmcid != "" {
		ctx = ctx.Str("pmcid", pmcid)
	}
	return ctx.Logger()
}

// WithInputContext adds a deduplication input to a logger.
func WithInputContext(logger zerolog.Logger, runName, root string) zerolog.Logger {
	return logger.With().
		Str("input", runName).
		Str("root", root).
		Logger()
}
