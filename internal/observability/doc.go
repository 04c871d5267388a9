// Package observability provides logging and metrics support for the
// literature collector.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.DefaultLoggingConfig())
//	logger = observability.WithRunContext(logger, runID)
//	logger.Info().Str("query", name).Msg("query started")
//
// The default configuration writes human-readable console output to stderr;
// set Format to "json" for machine-readable logs.
//
// # Metrics
//
// Each invocation owns a private registry:
//
//	metrics := observability.NewMetrics("litcollect")
//	metrics.RecordArticleSaved(true)
//	metrics.RecordFullText(observability.FullTextNotFound)
//	_ = metrics.WriteTextfile("/var/lib/node_exporter/litcollect.prom")
//
// Metrics satisfies the request recorder used by the HTTP client, so source
// request counts and latencies are captured without extra wiring.
//
// # Context Helpers
//
//	ctx = observability.WithRunID(ctx, runID)
//	ctx = observability.WithQueryName(ctx, name)
//	logger = observability.LoggerFromContext(ctx, logger)
//
// # Standard Fields
//
//   - run_id: collection run identifier
//   - query: query set entry name
//   - pmid, pmcid: article identifiers
//   - input, root: deduplication input run and directory
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
