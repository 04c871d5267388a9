package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/papersources"
	"github.com/helixir/literature-collector/internal/papersources/pubmed"
	"github.com/helixir/literature-collector/internal/store"
)

var fixedTime = time.Date(2025, 11, 16, 9, 30, 0, 0, time.UTC)

// fakeSource is an in-memory ArticleSource keyed by query, PMID, and PMCID.
type fakeSource struct {
	results      map[string]*pubmed.SearchResult
	searchErr    map[string]error
	summaries    map[string]pubmed.Summary
	summariesErr error
	fulltext     map[string][]byte
	fulltextErr  map[string]error
	abstracts    map[string]string
	converted    map[string]string

	fulltextCalls []string
	convertCalls  [][]string
	abstractCalls int
}

func (f *fakeSource) Search(_ context.Context, query string, maxResults int) (*pubmed.SearchResult, error) {
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	r, ok := f.results[query]
	if !ok {
		return &pubmed.SearchResult{IDs: []string{}}, nil
	}
	return r, nil
}

func (f *fakeSource) FetchSummaries(_ context.Context, ids []string, _ int) ([]pubmed.Summary, error) {
	out := make([]pubmed.Summary, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.summaries[id]; ok {
			out = append(out, s)
		}
	}
	return out, f.summariesErr
}

func (f *fakeSource) FetchFullText(_ context.Context, pmcid string) ([]byte, error) {
	f.fulltextCalls = append(f.fulltextCalls, pmcid)
	if err := f.fulltextErr[pmcid]; err != nil {
		return nil, err
	}
	return f.fulltext[pmcid], nil
}

func (f *fakeSource) FetchAbstracts(_ context.Context, ids []string, _ int) (map[string]string, error) {
	f.abstractCalls++
	out := map[string]string{}
	for _, id := range ids {
		if a, ok := f.abstracts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (f *fakeSource) ConvertIDs(_ context.Context, ids []string) (map[string]string, error) {
	f.convertCalls = append(f.convertCalls, ids)
	return f.converted, nil
}

func summary(pmid, pmcid string) pubmed.Summary {
	return pubmed.Summary{
		PMID:     pmid,
		PMCID:    pmcid,
		Metadata: json.RawMessage(fmt.Sprintf(`{"uid":%q,"title":"Article %s"}`, pmid, pmid)),
	}
}

func newTestDriver(src ArticleSource, opts Options) (*Driver, *observability.Metrics) {
	metrics := observability.NewMetrics("test")
	d := NewDriver(src, opts, zerolog.Nop(), metrics)
	d.now = func() time.Time { return fixedTime }
	d.newID = func() uuid.UUID { return uuid.MustParse("11111111-2222-3333-4444-555555555555") }
	return d, metrics
}

func readSummary(t *testing.T, path string) domain.CollectionSummary {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s domain.CollectionSummary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestDriver_Run(t *testing.T) {
	t.Run("collects metadata and full text with soft failures", func(t *testing.T) {
		out := t.TempDir()
		src := &fakeSource{
			results: map[string]*pubmed.SearchResult{
				"sepsis": {IDs: []string{"1", "2", "3", "4"}, Count: 40},
			},
			summaries: map[string]pubmed.Summary{
				"1": summary("1", "PMC10"),
				"2": summary("2", "PMC20"),
				"3": summary("3", ""),
				"4": summary("4", "PMC40"),
			},
			fulltext: map[string][]byte{"PMC10": []byte("<article>one</article>")},
			fulltextErr: map[string]error{
				"PMC20": fmt.Errorf("%w (status 404)", domain.NewNotFoundError("full text", "PMC20")),
				"PMC40": domain.NewTransportError("pubmed", "efetch", 0, "connection reset", errors.New("reset")),
			},
		}
		d, metrics := newTestDriver(src, Options{OutputDir: out, FullText: true})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{
			{Name: "sepsis", Query: "sepsis", MaxResults: 10},
		})
		require.NoError(t, err)

		require.Len(t, run.Categories, 1)
		s := run.Categories[0]
		assert.Equal(t, domain.QueryStatusCompleted, s.Status)
		assert.Equal(t, 40, s.TotalFound)
		assert.Equal(t, 4, s.IDsReturned)
		assert.Equal(t, 4, s.MetadataCollected)
		assert.Equal(t, 3, s.FullTextAvailable)
		assert.Equal(t, 1, s.FullTextCollected)
		assert.Equal(t, 1, s.FullTextNotFound)
		assert.Equal(t, 1, s.FullTextErrors)
		assert.Equal(t, []string{"PMC10", "PMC20", "PMC40"}, src.fulltextCalls)

		files, err := store.MetadataFiles(out)
		require.NoError(t, err)
		assert.Len(t, files, 4)

		rec, err := store.Load(filepath.Join(out, "sepsis", "metadata", "1.json"))
		require.NoError(t, err)
		assert.Equal(t, "PMC10", rec.PMCID)
		assert.Equal(t, "sepsis", rec.QueryName)
		require.NotNil(t, rec.CollectedAt)
		assert.True(t, fixedTime.Equal(*rec.CollectedAt))

		assert.FileExists(t, filepath.Join(out, "sepsis", "fulltext", "PMC10.xml"))
		assert.NoFileExists(t, filepath.Join(out, "sepsis", "fulltext", "PMC20.xml"))
		assert.NoFileExists(t, filepath.Join(out, "sepsis", "fulltext", "PMC40.xml"))

		onDisk := readSummary(t, filepath.Join(out, "sepsis", SummaryFile))
		assert.Equal(t, 1, onDisk.FullTextCollected)
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", onDisk.RunID.String())

		assert.Equal(t, float64(4), testutil.ToFloat64(metrics.ArticlesCollected))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FullTextTotal.WithLabelValues(observability.FullTextCollected)))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FullTextTotal.WithLabelValues(observability.FullTextNotFound)))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FullTextTotal.WithLabelValues(observability.FullTextError)))
	})

	t.Run("search failure only aborts that query", func(t *testing.T) {
		out := t.TempDir()
		src := &fakeSource{
			results: map[string]*pubmed.SearchResult{
				"ok": {IDs: []string{"7"}, Count: 1},
			},
			searchErr: map[string]error{
				"broken": domain.NewTransportError("pubmed", "esearch", 500, "server error", nil),
			},
			summaries: map[string]pubmed.Summary{"7": summary("7", "")},
		}
		d, _ := newTestDriver(src, Options{OutputDir: out, FullText: true})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{
			{Name: "broken", Query: "broken", MaxResults: 10},
			{Name: "ok", Query: "ok", MaxResults: 10},
		})
		require.NoError(t, err)

		assert.Equal(t, 2, run.TotalQueries)
		assert.Equal(t, 1, run.FailedQueries)
		assert.Equal(t, 1, run.TotalMetadataCollected)
		assert.Equal(t, domain.QueryStatusFailed, run.Categories[0].Status)
		assert.Contains(t, run.Categories[0].Error, "server error")
		assert.Equal(t, domain.QueryStatusCompleted, run.Categories[1].Status)

		failed := readSummary(t, filepath.Join(out, "broken", SummaryFile))
		assert.Equal(t, domain.QueryStatusFailed, failed.Status)
	})

	t.Run("partial metadata keeps what arrived", func(t *testing.T) {
		out := t.TempDir()
		src := &fakeSource{
			results:      map[string]*pubmed.SearchResult{"q": {IDs: []string{"1", "2"}, Count: 2}},
			summaries:    map[string]pubmed.Summary{"1": summary("1", "")},
			summariesErr: errors.New("esummary batch of 1 starting at 2: boom"),
		}
		d, _ := newTestDriver(src, Options{OutputDir: out})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "q", Query: "q", MaxResults: 10}})
		require.NoError(t, err)

		s := run.Categories[0]
		assert.Equal(t, domain.QueryStatusPartial, s.Status)
		assert.Equal(t, 1, s.MetadataCollected)
		assert.Contains(t, s.Error, "boom")
	})

	t.Run("metadata failure with nothing returned fails the query", func(t *testing.T) {
		src := &fakeSource{
			results:      map[string]*pubmed.SearchResult{"q": {IDs: []string{"1"}, Count: 1}},
			summariesErr: errors.New("boom"),
		}
		d, _ := newTestDriver(src, Options{OutputDir: t.TempDir()})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "q", Query: "q", MaxResults: 10}})
		require.NoError(t, err)
		assert.Equal(t, domain.QueryStatusFailed, run.Categories[0].Status)
		assert.Equal(t, 1, run.FailedQueries)
	})

	t.Run("empty search result completes with zero counts", func(t *testing.T) {
		out := t.TempDir()
		d, _ := newTestDriver(&fakeSource{}, Options{OutputDir: out})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "none", Query: "none", MaxResults: 10}})
		require.NoError(t, err)
		assert.Equal(t, domain.QueryStatusCompleted, run.Categories[0].Status)
		assert.Equal(t, 0, run.Categories[0].MetadataCollected)
		assert.FileExists(t, filepath.Join(out, "none", SummaryFile))
	})

	t.Run("full text disabled never fetches", func(t *testing.T) {
		out := t.TempDir()
		src := &fakeSource{
			results:   map[string]*pubmed.SearchResult{"q": {IDs: []string{"1"}, Count: 1}},
			summaries: map[string]pubmed.Summary{"1": summary("1", "PMC1")},
			fulltext:  map[string][]byte{"PMC1": []byte("<article/>")},
		}
		d, _ := newTestDriver(src, Options{OutputDir: out, FullText: false})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "q", Query: "q", MaxResults: 10}})
		require.NoError(t, err)
		assert.Empty(t, src.fulltextCalls)
		assert.Equal(t, 1, run.Categories[0].FullTextAvailable)
		assert.Equal(t, 0, run.Categories[0].FullTextCollected)
	})

	t.Run("abstracts and converted ids are attached", func(t *testing.T) {
		out := t.TempDir()
		src := &fakeSource{
			results:   map[string]*pubmed.SearchResult{"q": {IDs: []string{"1", "2"}, Count: 2}},
			summaries: map[string]pubmed.Summary{"1": summary("1", ""), "2": summary("2", "PMC2")},
			converted: map[string]string{"1": "pmc11"},
			abstracts: map[string]string{"2": "BACKGROUND: text"},
			fulltext:  map[string][]byte{"PMC11": []byte("<a/>"), "PMC2": []byte("<b/>")},
		}
		d, _ := newTestDriver(src, Options{OutputDir: out, FullText: true, Abstracts: true, ConvertIDs: true})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "q", Query: "q", MaxResults: 10}})
		require.NoError(t, err)

		assert.Equal(t, [][]string{{"1"}}, src.convertCalls)
		assert.Equal(t, 1, src.abstractCalls)
		s := run.Categories[0]
		assert.Equal(t, 2, s.FullTextAvailable)
		assert.Equal(t, 2, s.FullTextCollected)
		assert.Equal(t, 1, s.AbstractsCollected)

		rec, err := store.Load(filepath.Join(out, "q", "metadata", "1.json"))
		require.NoError(t, err)
		assert.Equal(t, "PMC11", rec.PMCID)

		rec, err = store.Load(filepath.Join(out, "q", "metadata", "2.json"))
		require.NoError(t, err)
		assert.Equal(t, "BACKGROUND: text", rec.Abstract)
	})

	t.Run("store failure aborts the run", func(t *testing.T) {
		out := t.TempDir()
		// A file where the query directory should be makes every write fail.
		require.NoError(t, os.WriteFile(filepath.Join(out, "first"), []byte("x"), 0o644))
		src := &fakeSource{
			results:   map[string]*pubmed.SearchResult{"q": {IDs: []string{"1"}, Count: 1}},
			summaries: map[string]pubmed.Summary{"1": summary("1", "")},
		}
		d, _ := newTestDriver(src, Options{OutputDir: out})

		run, err := d.Run(context.Background(), []domain.QueryDescriptor{
			{Name: "first", Query: "q", MaxResults: 10},
			{Name: "second", Query: "q", MaxResults: 10},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query first")
		require.NotNil(t, run)
		assert.Equal(t, 1, run.TotalQueries)
		assert.Equal(t, domain.QueryStatusFailed, run.Categories[0].Status)
	})

	t.Run("cancellation stops the run", func(t *testing.T) {
		out := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := &fakeSource{
			results:   map[string]*pubmed.SearchResult{"q": {IDs: []string{"1"}, Count: 1}},
			summaries: map[string]pubmed.Summary{"1": summary("1", "")},
		}
		d, _ := newTestDriver(src, Options{OutputDir: out})

		run, err := d.Run(ctx, []domain.QueryDescriptor{
			{Name: "q", Query: "q", MaxResults: 10},
			{Name: "r", Query: "q", MaxResults: 10},
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, run.Categories, 1)
		assert.Equal(t, domain.QueryStatusCancelled, run.Categories[0].Status)
		assert.NoFileExists(t, filepath.Join(out, "q", "metadata", "1.json"))
	})

	t.Run("run summary is written at the root", func(t *testing.T) {
		out := t.TempDir()
		d, _ := newTestDriver(&fakeSource{}, Options{OutputDir: out})

		_, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "a", Query: "a", MaxResults: 1}})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(out, RunSummaryFile))
		require.NoError(t, err)
		var run domain.RunSummary
		require.NoError(t, json.Unmarshal(data, &run))
		assert.Equal(t, 1, run.TotalQueries)
		assert.Equal(t, out, run.OutputDirectory)
		require.Len(t, run.Categories, 1)
		assert.Equal(t, "a", run.Categories[0].QueryName)
	})
}

// TestDriver_EndToEnd drives the real client against a fake E-utilities server.
func TestDriver_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			_, _ = io.WriteString(w, `{"esearchresult":{"count":"2","idlist":["100","200"]}}`)
		case strings.HasSuffix(r.URL.Path, "/esummary.fcgi"):
			_, _ = io.WriteString(w, `{"result":{"uids":["100","200"],`+
				`"100":{"uid":"100","title":"With PMC","articleids":[{"idtype":"pmc","value":"PMC100"}]},`+
				`"200":{"uid":"200","title":"No PMC","articleids":[]}}}`)
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi") && q.Get("db") == "pmc":
			assert.Equal(t, "PMC100", q.Get("id"))
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<pmc-articleset><article><body><sec><p>text</p></sec></body></article></pmc-articleset>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	metrics := observability.NewMetrics("e2e")
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{Source: "pubmed", Recorder: metrics})
	client := pubmed.NewWithHTTPClient(pubmed.Config{BaseURL: server.URL}, httpClient)

	out := t.TempDir()
	d := NewDriver(client, Options{OutputDir: out, FullText: true}, zerolog.Nop(), metrics)

	run, err := d.Run(context.Background(), []domain.QueryDescriptor{{Name: "sepsis", Query: "sepsis", MaxResults: 5}})
	require.NoError(t, err)

	s := run.Categories[0]
	assert.Equal(t, domain.QueryStatusCompleted, s.Status)
	assert.Equal(t, 2, s.MetadataCollected)
	assert.Equal(t, 1, s.FullTextAvailable)
	assert.Equal(t, 1, s.FullTextCollected)

	body, err := os.ReadFile(filepath.Join(out, "sepsis", "fulltext", "PMC100.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "<p>text</p>")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceRequestsTotal.WithLabelValues("pubmed", "esearch.fcgi")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceRequestsTotal.WithLabelValues("pubmed", "esummary.fcgi")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceRequestsTotal.WithLabelValues("pubmed", "efetch.fcgi")))
}
