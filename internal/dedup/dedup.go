// Package dedup merges several collection output trees into one, keyed by
// PMID, and flags near-duplicate articles through fuzzy matching of titles
// and author lists.
package dedup

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/store"
)

const (
	// ReportFile is the name of the deduplication report.
	ReportFile = "deduplication_report.json"

	// DefaultTopDuplicated is the number of entries listed in Report.TopDuplicated.
	DefaultTopDuplicated = 10

	// DefaultAuthorThreshold is the author overlap at or above which two
	// records with the same normalized title are reported as possible duplicates.
	DefaultAuthorThreshold = 0.5
)

// Input is one collection output tree and the run name recorded in provenance.
type Input struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// Options controls a deduplication run.
type Options struct {
	// ReportDir receives deduplication_report.json. Empty writes it to the output root.
	ReportDir string

	// Clean removes the output metadata and fulltext directories before writing.
	Clean bool

	// TopDuplicated bounds Report.TopDuplicated.
	TopDuplicated int

	// AuthorThreshold is the minimum author overlap for a possible duplicate.
	AuthorThreshold float64
}

// InputStats describes what was read from one input tree.
type InputStats struct {
	Name           string `json:"name"`
	Root           string `json:"root"`
	MetadataFiles  int    `json:"metadata_files"`
	UniqueArticles int    `json:"unique_articles"`
	Skipped        int    `json:"skipped_files"`
	Missing        bool   `json:"missing,omitempty"`
}

// DuplicateEntry is one identifier observed in more than one run.
type DuplicateEntry struct {
	PMID        string   `json:"pmid"`
	Title       string   `json:"title,omitempty"`
	Runs        []string `json:"runs"`
	Count       int      `json:"count"`
	Occurrences int      `json:"occurrences"`
}

// PossibleDuplicate pairs two distinct PMIDs that look like the same article.
type PossibleDuplicate struct {
	PMIDs         []string `json:"pmids"`
	Title         string   `json:"title"`
	AuthorOverlap float64  `json:"author_overlap"`
}

// Report summarizes a deduplication run. It carries no timestamps so that
// identical inputs produce an identical report.
type Report struct {
	OutputDirectory      string              `json:"output_directory"`
	Inputs               []InputStats        `json:"inputs"`
	TotalArticlesFound   int                 `json:"total_articles_found"`
	UniqueArticles       int                 `json:"unique_articles"`
	DuplicateInstances   int                 `json:"duplicate_instances"`
	ArticlesWithFullText int                 `json:"articles_with_fulltext"`
	FullTextCoverage     float64             `json:"fulltext_coverage_percent"`
	SkippedFiles         int                 `json:"skipped_files"`
	ArticlesByRunCount   map[string]int      `json:"articles_by_run_count"`
	RunBreakdown         map[string]int      `json:"run_breakdown"`
	TopDuplicated        []DuplicateEntry    `json:"top_duplicated"`
	PossibleDuplicates   []PossibleDuplicate `json:"possible_duplicates"`
}

// occurrence is one metadata file holding an identifier.
type occurrence struct {
	run   string
	path  string
	pmcid string
}

// group collects every occurrence of one identifier.
type group struct {
	pmid        string
	canonical   *domain.ArticleRecord
	runs        []string
	runSet      mapset.Set[string]
	occurrences []occurrence
}

// Deduplicator merges collection trees. It is not safe for concurrent use.
type Deduplicator struct {
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Deduplicator. A nil metrics gets a private, unexported set.
func New(opts Options, logger zerolog.Logger, metrics *observability.Metrics) *Deduplicator {
	if opts.TopDuplicated <= 0 {
		opts.TopDuplicated = DefaultTopDuplicated
	}
	if opts.AuthorThreshold <= 0 {
		opts.AuthorThreshold = DefaultAuthorThreshold
	}
	if metrics == nil {
		metrics = observability.NewMetrics("litcollect")
	}
	return &Deduplicator{opts: opts, logger: logger, metrics: metrics}
}

// Run scans inputs in order and writes one record per PMID to
// <outputRoot>/metadata, copying full text from the first occurrence whose
// tree holds it. The first occurrence in input order, then lexical path
// order, supplies the metadata. Unreadable files are skipped and counted;
// filesystem errors on the output side abort the run.
func (d *Deduplicator) Run(inputs []Input, outputRoot string) (*Report, error) {
	if len(inputs) == 0 {
		return nil, domain.NewValidationError("inputs", "at least one input is required")
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for i, in := range inputs {
		if in.Name == "" || in.Root == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("inputs[%d]", i), "name and root are required")
		}
		if !names.Add(in.Name) {
			return nil, domain.NewValidationError(fmt.Sprintf("inputs[%d].name", i), "duplicate run name "+in.Name)
		}
	}

	outMetadata := filepath.Join(outputRoot, store.MetadataDir)
	skipDir, err := filepath.Abs(outMetadata)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}

	report := &Report{
		OutputDirectory:    outputRoot,
		Inputs:             make([]InputStats, 0, len(inputs)),
		ArticlesByRunCount: map[string]int{},
		RunBreakdown:       map[string]int{},
		TopDuplicated:      []DuplicateEntry{},
		PossibleDuplicates: []PossibleDuplicate{},
	}
	groups := map[string]*group{}
	perRun := map[string]mapset.Set[string]{}

	for _, in := range inputs {
		logger := observability.WithInputContext(d.logger, in.Name, in.Root)
		stats := InputStats{Name: in.Name, Root: in.Root}
		perRun[in.Name] = mapset.NewThreadUnsafeSet[string]()

		files, err := store.MetadataFiles(in.Root)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Msg("input directory not found")
			stats.Missing = true
			report.Inputs = append(report.Inputs, stats)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", in.Root, err)
		}

		for _, path := range files {
			if abs, err := filepath.Abs(filepath.Dir(path)); err == nil && abs == skipDir {
				continue
			}
			stats.MetadataFiles++

			record, err := store.Load(path)
			if err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable metadata file")
				stats.Skipped++
				d.metrics.RecordSkipped("dedup")
				continue
			}

			g, seen := groups[record.PMID]
			if !seen {
				g = &group{pmid: record.PMID, canonical: record, runSet: mapset.NewThreadUnsafeSet[string]()}
				groups[record.PMID] = g
			}
			if g.runSet.Add(in.Name) {
				g.runs = append(g.runs, in.Name)
			}
			g.occurrences = append(g.occurrences, occurrence{run: in.Name, path: path, pmcid: recordPMCID(record)})
			perRun[in.Name].Add(record.PMID)
			d.metrics.RecordDedupFile(seen)
		}

		stats.UniqueArticles = perRun[in.Name].Cardinality()
		report.TotalArticlesFound += stats.MetadataFiles - stats.Skipped
		report.SkippedFiles += stats.Skipped
		report.RunBreakdown[in.Name] = stats.UniqueArticles
		report.Inputs = append(report.Inputs, stats)
		logger.Info().
			Int("files", stats.MetadataFiles).
			Int("unique", stats.UniqueArticles).
			Int("skipped", stats.Skipped).
			Msg("input scanned")
	}

	if d.opts.Clean {
		for _, dir := range []string{store.MetadataDir, store.FullTextDir} {
			if err := os.RemoveAll(filepath.Join(outputRoot, dir)); err != nil {
				return nil, fmt.Errorf("clean output: %w", err)
			}
		}
	}

	pmids := make([]string, 0, len(groups))
	for pmid := range groups {
		pmids = append(pmids, pmid)
	}
	sort.Strings(pmids)

	out := store.New(outputRoot)
	for _, pmid := range pmids {
		g := groups[pmid]
		merged := *g.canonical
		merged.Provenance = domain.NewProvenance(g.runs, len(g.occurrences))

		src, hasFullText := fullTextSource(g)
		if hasFullText && merged.PMCID == "" {
			merged.PMCID = src.pmcid
		}

		if _, err := out.Save(&merged, nil); err != nil {
			return nil, fmt.Errorf("write merged record %s: %w", pmid, err)
		}

		if hasFullText {
			if err := store.CopyFile(store.FullTextPath(src.path, src.pmcid), out.FullTextFile(src.pmcid)); err != nil {
				return nil, fmt.Errorf("copy full text %s: %w", src.pmcid, err)
			}
			report.ArticlesWithFullText++
		}
		report.ArticlesByRunCount[fmt.Sprint(merged.Provenance.Count)]++
	}

	report.UniqueArticles = len(groups)
	report.DuplicateInstances = report.TotalArticlesFound - report.UniqueArticles
	if report.UniqueArticles > 0 {
		pct := float64(report.ArticlesWithFullText) / float64(report.UniqueArticles) * 100
		report.FullTextCoverage = math.Round(pct*10) / 10
	}
	report.TopDuplicated = topDuplicated(groups, pmids, d.opts.TopDuplicated)
	report.PossibleDuplicates = possibleDuplicates(groups, pmids, d.opts.AuthorThreshold)
	d.metrics.RecordDedupUnique(report.UniqueArticles)

	reportDir := d.opts.ReportDir
	if reportDir == "" {
		reportDir = outputRoot
	}
	if err := store.WriteJSON(filepath.Join(reportDir, ReportFile), report); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	d.logger.Info().
		Int("total", report.TotalArticlesFound).
		Int("unique", report.UniqueArticles).
		Int("duplicates", report.DuplicateInstances).
		Int("fulltext", report.ArticlesWithFullText).
		Float64("coverage", report.FullTextCoverage).
		Msg("deduplication complete")

	return report, nil
}

// recordPMCID returns the record's PMCID, falling back to the esummary
// articleids.
func recordPMCID(record *domain.ArticleRecord) string {
	if record.PMCID != "" {
		return record.PMCID
	}
	fields, err := domain.ParseSummary(record.Metadata)
	if err != nil {
		return ""
	}
	return domain.NormalizePMCID(fields.PMCID())
}

// fullTextSource returns the first occurrence whose tree holds full text
// under that occurrence's own PMCID.
func fullTextSource(g *group) (occurrence, bool) {
	for _, occ := range g.occurrences {
		if occ.pmcid == "" || store.ValidateName(occ.pmcid) != nil {
			continue
		}
		if store.HasFullText(occ.path, occ.pmcid) {
			return occ, true
		}
	}
	return occurrence{}, false
}

func topDuplicated(groups map[string]*group, pmids []string, limit int) []DuplicateEntry {
	entries := []DuplicateEntry{}
	for _, pmid := range pmids {
		g := groups[pmid]
		if len(g.runs) < 2 {
			continue
		}
		fields, _ := domain.ParseSummary(g.canonical.Metadata)
		entries = append(entries, DuplicateEntry{
			PMID:        pmid,
			Title:       fields.Title,
			Runs:        g.runs,
			Count:       len(g.runs),
			Occurrences: len(g.occurrences),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Occurrences > entries[j].Occurrences
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// possibleDuplicates pairs distinct PMIDs sharing a normalized title whose
// author lists overlap by at least threshold. They are reported, never merged.
func possibleDuplicates(groups map[string]*group, pmids []string, threshold float64) []PossibleDuplicate {
	type candidate struct {
		pmid    string
		title   string
		authors []string
	}
	byTitle := map[string][]candidate{}
	var titles []string
	for _, pmid := range pmids {
		fields, err := domain.ParseSummary(groups[pmid].canonical.Metadata)
		if err != nil {
			continue
		}
		key := NormalizeTitle(fields.Title)
		if key == "" {
			continue
		}
		authors := make([]string, 0, len(fields.Authors))
		for _, a := range fields.Authors {
			authors = append(authors, a.DisplayName())
		}
		if _, ok := byTitle[key]; !ok {
			titles = append(titles, key)
		}
		byTitle[key] = append(byTitle[key], candidate{pmid: pmid, title: fields.Title, authors: authors})
	}

	out := []PossibleDuplicate{}
	for _, key := range titles {
		cs := byTitle[key]
		for i := 0; i < len(cs); i++ {
			for j := i + 1; j < len(cs); j++ {
				overlap := AuthorOverlap(cs[i].authors, cs[j].authors)
				if overlap < threshold {
					continue
				}
				out = append(out, PossibleDuplicate{
					PMIDs:         []string{cs[i].pmid, cs[j].pmid},
					Title:         cs[i].title,
					AuthorOverlap: math.Round(overlap*100) / 100,
				})
			}
		}
	}
	return out
}
