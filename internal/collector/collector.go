// Package collector runs named queries against PubMed and persists the
// resulting metadata and PMC full text.
package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/papersources/pubmed"
	"github.com/helixir/literature-collector/internal/store"
)

const (
	// SummaryFile is the per-query summary written inside each query directory.
	SummaryFile = "summary.json"

	// RunSummaryFile is the run summary written at the output root.
	RunSummaryFile = "collection_summary.json"

	// DefaultProgressEvery is the record interval between progress log lines.
	DefaultProgressEvery = 10
)

// ArticleSource is the subset of the PubMed client used by the driver.
type ArticleSource interface {
	Search(ctx context.Context, query string, maxResults int) (*pubmed.SearchResult, error)
	FetchSummaries(ctx context.Context, ids []string, batchSize int) ([]pubmed.Summary, error)
	FetchFullText(ctx context.Context, pmcid string) ([]byte, error)
	FetchAbstracts(ctx context.Context, ids []string, batchSize int) (map[string]string, error)
	ConvertIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// Options controls a collection run.
type Options struct {
	// OutputDir is the root under which one directory per query is created.
	OutputDir string

	// BatchSize is the number of ids per summary or abstract request.
	BatchSize int

	// FullText enables full-text retrieval for records with a PMCID.
	FullText bool

	// Abstracts enables abstract retrieval.
	Abstracts bool

	// ConvertIDs resolves PMCIDs missing from summaries through the ID converter.
	ConvertIDs bool

	// ProgressEvery is the record interval between progress log lines.
	ProgressEvery int
}

// Driver executes queries sequentially. It is not safe for concurrent use.
type Driver struct {
	source  ArticleSource
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics

	now   func() time.Time
	newID func() uuid.UUID
}

// NewDriver creates a Driver. A nil metrics gets a private, unexported set.
func NewDriver(source ArticleSource, opts Options, logger zerolog.Logger, metrics *observability.Metrics) *Driver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = pubmed.DefaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if metrics == nil {
		metrics = observability.NewMetrics("litcollect")
	}
	return &Driver{
		source:  source,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// Run executes every query in order and writes the run summary to
// <OutputDir>/collection_summary.json. Search or metadata failures are
// recorded in the query's summary and the run moves on; store failures and
// cancellation stop the run and are returned along with the partial summary.
func (d *Driver) Run(ctx context.Context, queries []domain.QueryDescriptor) (*domain.RunSummary, error) {
	run := &domain.RunSummary{
		RunID:           d.newID(),
		StartedAt:       d.now().UTC(),
		OutputDirectory: d.opts.OutputDir,
		Categories:      []*domain.CollectionSummary{},
	}
	ctx = observability.WithRunID(ctx, run.RunID.String())
	logger := observability.WithRunContext(d.logger, run.RunID.String())

	logger.Info().
		Int("queries", len(queries)).
		Str("output", d.opts.OutputDir).
		Bool("fulltext", d.opts.FullText).
		Msg("collection started")

	var runErr error
	for _, qd := range queries {
		summary, err := d.RunQuery(ctx, run.RunID, qd)
		if summary != nil {
			run.Add(summary)
		}
		if err != nil {
			runErr = fmt.Errorf("query %s: %w", qd.Name, err)
			break
		}
	}

	run.FinishedAt = d.now().UTC()
	if err := store.WriteJSON(filepath.Join(d.opts.OutputDir, RunSummaryFile), run); err != nil {
		return run, errors.Join(runErr, fmt.Errorf("write run summary: %w", err))
	}

	logger.Info().
		Int("queries", run.TotalQueries).
		Int("failed", run.FailedQueries).
		Int("metadata", run.TotalMetadataCollected).
		Int("fulltext", run.TotalFullTextCollected).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("collection finished")

	return run, runErr
}

// RunQuery collects a single query into <OutputDir>/<name> and writes its
// summary.json. The returned error is non-nil only for failures that must
// stop the whole run.
func (d *Driver) RunQuery(ctx context.Context, runID uuid.UUID, qd domain.QueryDescriptor) (*domain.CollectionSummary, error) {
	ctx = observability.WithQueryName(ctx, qd.Name)
	logger := observability.WithQueryContext(observability.LoggerFromContext(ctx, d.logger), qd.Name, qd.MaxResults)

	summary := &domain.CollectionSummary{
		QueryName:   qd.Name,
		Description: qd.Description,
		Query:       qd.Query,
		RunID:       runID,
		StartedAt:   d.now().UTC(),
	}
	queryStore := store.New(filepath.Join(d.opts.OutputDir, qd.Name))

	runErr := d.collect(ctx, logger, queryStore, qd, summary)
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		summary.Status = domain.QueryStatusCancelled
		summary.Error = ctx.Err().Error()
	default:
		summary.Status = domain.QueryStatusFailed
		summary.Error = runErr.Error()
	}

	summary.FinishedAt = d.now().UTC()
	d.metrics.RecordQueryFinished(string(summary.Status), summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	if err := store.WriteJSON(filepath.Join(queryStore.Root(), SummaryFile), summary); err != nil {
		return summary, errors.Join(runErr, fmt.Errorf("write query summary: %w", err))
	}

	logger.Info().
		Str("status", string(summary.Status)).
		Int("found", summary.TotalFound).
		Int("metadata", summary.MetadataCollected).
		Int("fulltext", summary.FullTextCollected).
		Int("fulltext_not_found", summary.FullTextNotFound).
		Int("fulltext_errors", summary.FullTextErrors).
		Msg("query finished")

	return summary, runErr
}

func (d *Driver) collect(ctx context.Context, logger zerolog.Logger, s *store.ArticleStore, qd domain.QueryDescriptor, summary *domain.CollectionSummary) error {
	logger.Info().Msg("searching")
	result, err := d.source.Search(ctx, qd.Query, qd.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error().Err(err).Msg("search failed")
		summary.Status = domain.QueryStatusFailed
		summary.Error = err.Error()
		return nil
	}
	summary.TotalFound = result.Count
	summary.IDsReturned = len(result.IDs)
	logger.Info().Int("found", result.Count).Int("returned", len(result.IDs)).Msg("search complete")

	summary.Status = domain.QueryStatusCompleted
	if len(result.IDs) == 0 {
		return nil
	}

	summaries, err := d.source.FetchSummaries(ctx, result.IDs, d.opts.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.Error = err.Error()
		if len(summaries) == 0 {
			logger.Error().Err(err).Msg("metadata fetch failed")
			summary.Status = domain.QueryStatusFailed
			return nil
		}
		logger.Warn().Err(err).Int("received", len(summaries)).Msg("metadata partially fetched")
		summary.Status = domain.QueryStatusPartial
	}

	if d.opts.ConvertIDs {
		d.resolvePMCIDs(ctx, logger, summaries)
	}

	var abstracts map[string]string
	if d.opts.Abstracts {
		abstracts = d.fetchAbstracts(ctx, logger, summaries)
	}

	for _, sm := range summaries {
		if sm.PMCID != "" {
			summary.FullTextAvailable++
		}
	}

	for i, sm := range summaries {
		if err := ctx.Err(); err != nil {
			return err
		}

		record := &domain.ArticleRecord{
			PMID:      sm.PMID,
			PMCID:     sm.PMCID,
			Metadata:  sm.Metadata,
			Abstract:  abstracts[sm.PMID],
			QueryName: qd.Name,
		}
		collected := d.now().UTC()
		record.CollectedAt = &collected

		var body []byte
		if d.opts.FullText && sm.PMCID != "" {
			body, err = d.source.FetchFullText(ctx, sm.PMCID)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrNotFound):
				summary.FullTextNotFound++
				d.metrics.RecordFullText(observability.FullTextNotFound)
				logger.Debug().Str("pmcid", sm.PMCID).Err(err).Msg("full text not available")
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				summary.FullTextErrors++
				d.metrics.RecordFullText(observability.FullTextError)
				articleLogger := observability.WithArticleContext(logger, sm.PMID, sm.PMCID)
				articleLogger.Warn().Err(err).Msg("full text fetch failed")
			}
		}

		wrote, err := s.Save(record, body)
		if err != nil {
			return fmt.Errorf("store article %s: %w", sm.PMID, err)
		}
		summary.MetadataCollected++
		d.metrics.RecordArticleSaved(record.Abstract != "")
		if record.Abstract != "" {
			summary.AbstractsCollected++
		}
		if wrote {
			summary.FullTextCollected++
			d.metrics.RecordFullText(observability.FullTextCollected)
		}

		if (i+1)%d.opts.ProgressEvery == 0 || i+1 == len(summaries) {
			logger.Info().
				Int("processed", i+1).
				Int("total", len(summaries)).
				Int("fulltext", summary.FullTextCollected).
				Msg("progress")
		}
	}
	return nil
}

// resolvePMCIDs fills missing PMCIDs in place. Failures only cost coverage.
func (d *Driver) resolvePMCIDs(ctx context.Context, logger zerolog.Logger, summaries []pubmed.Summary) {
	var missing []string
	for _, sm := range summaries {
		if sm.PMCID == "" {
			missing = append(missing, sm.PMID)
		}
	}
	if len(missing) == 0 {
		return
	}

	mapping, err := d.source.ConvertIDs(ctx, missing)
	if err != nil {
		logger.Warn().Err(err).Int("ids", len(missing)).Msg("PMCID conversion incomplete")
	}
	resolved := 0
	for i := range summaries {
		if summaries[i].PMCID != "" {
			continue
		}
		if pmcid := domain.NormalizePMCID(mapping[summaries[i].PMID]); pmcid != "" {
			summaries[i].PMCID = pmcid
			resolved++
		}
	}
	logger.Debug().Int("missing", len(missing)).Int("resolved", resolved).Msg("PMCIDs converted")
}

func (d *Driver) fetchAbstracts(ctx context.Context, logger zerolog.Logger, summaries []pubmed.Summary) map[string]string {
	ids := make([]string, len(summaries))
	for i, sm := range summaries {
		ids[i] = sm.PMID
	}
	abstracts, err := d.source.FetchAbstracts(ctx, ids, d.opts.BatchSize)
	if err != nil {
		logger.Warn().Err(err).Int("received", len(abstracts)).Msg("abstracts partially fetched")
	}
	return abstracts
}
