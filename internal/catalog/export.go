package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/literature-collector/internal/store"
)

// Output file names.
const (
	CatalogFile    = "article_catalog.csv"
	SimplifiedFile = "article_catalog_simplified.csv"
	SummaryFile    = "catalog_summary.json"
)

// DefaultTopJournals bounds Summary.TopJournals.
const DefaultTopJournals = 10

// utf8BOM lets spreadsheet applications detect the encoding.
const utf8BOM = "\ufeff"

// Columns of the full catalog.
var Columns = []string{
	"category", "pmid", "pmc_id", "doi", "title", "first_author", "authors",
	"author_count", "journal", "publication_date", "primary_type",
	"all_publication_types", "is_review", "is_meta_analysis", "is_guideline",
	"is_systematic_review", "has_fulltext", "volume", "issue", "pages",
	"appeared_in_runs", "num_runs", "is_duplicate",
}

// SimplifiedColumns of the quick-reference catalog.
var SimplifiedColumns = []string{
	"pmid", "pmc_id", "title", "primary_type", "journal", "publication_date",
	"doi", "has_fulltext", "appeared_in_runs", "num_runs",
}

func (r Row) values() map[string]string {
	return map[string]string{
		"category":              r.Category,
		"pmid":                  r.PMID,
		"pmc_id":                r.PMCID,
		"doi":                   r.DOI,
		"title":                 r.Title,
		"first_author":          r.FirstAuthor,
		"authors":               r.Authors,
		"author_count":          strconv.Itoa(r.AuthorCount),
		"journal":               r.Journal,
		"publication_date":      r.PublicationDate,
		"primary_type":          r.PrimaryType,
		"all_publication_types": strings.Join(r.PublicationTypes, ", "),
		"is_review":             strconv.FormatBool(r.IsReview),
		"is_meta_analysis":      strconv.FormatBool(r.IsMetaAnalysis),
		"is_guideline":          strconv.FormatBool(r.IsGuideline),
		"is_systematic_review":  strconv.FormatBool(r.IsSystematicReview),
		"has_fulltext":          strconv.FormatBool(r.HasFullText),
		"volume":                r.Volume,
		"issue":                 r.Issue,
		"pages":                 r.Pages,
		"appeared_in_runs":      strings.Join(r.Runs, ", "),
		"num_runs":              strconv.Itoa(r.RunCount),
		"is_duplicate":          strconv.FormatBool(r.IsDuplicate),
	}
}

// WriteCSV writes rows with the given columns, preceded by a UTF-8 byte order mark.
func WriteCSV(w io.Writer, rows []Row, columns []string) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, r := range rows {
		vals := r.values()
		for i, col := range columns {
			record[i] = vals[col]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TypeStats counts rows sharing a primary type or category.
type TypeStats struct {
	Total             int `json:"total_articles"`
	WithFullText      int `json:"with_fulltext"`
	Reviews           int `json:"reviews"`
	MetaAnalyses      int `json:"meta_analyses"`
	Guidelines        int `json:"guidelines"`
	SystematicReviews int `json:"systematic_reviews"`
}

func (s *TypeStats) add(r Row) {
	s.Total++
	if r.HasFullText {
		s.WithFullText++
	}
	if r.IsReview {
		s.Reviews++
	}
	if r.IsMetaAnalysis {
		s.MetaAnalyses++
	}
	if r.IsGuideline {
		s.Guidelines++
	}
	if r.IsSystematicReview {
		s.SystematicReviews++
	}
}

// JournalCount is one entry of Summary.TopJournals.
type JournalCount struct {
	Journal string `json:"journal"`
	Count   int    `json:"count"`
}

// Summary holds catalog-wide statistics.
type Summary struct {
	Root             string                `json:"root"`
	TotalArticles    int                   `json:"total_articles"`
	SkippedFiles     int                   `json:"skipped_files"`
	FullTextCoverage float64               `json:"fulltext_coverage_percent"`
	Totals           TypeStats             `json:"totals"`
	ByPrimaryType    map[string]*TypeStats `json:"by_primary_type"`
	ByCategory       map[string]*TypeStats `json:"by_category"`
	ByRunCount       map[string]int        `json:"by_run_count"`
	TopJournals      []JournalCount        `json:"top_journals"`
}

// Summarize computes catalog statistics.
func Summarize(c *Catalog) *Summary {
	s := &Summary{
		Root:          c.Root,
		TotalArticles: len(c.Rows),
		SkippedFiles:  c.Skipped,
		ByPrimaryType: map[string]*TypeStats{},
		ByCategory:    map[string]*TypeStats{},
		ByRunCount:    map[string]int{},
		TopJournals:   []JournalCount{},
	}
	journals := map[string]int{}
	for _, r := range c.Rows {
		s.Totals.add(r)
		bucket(s.ByPrimaryType, r.PrimaryType).add(r)
		bucket(s.ByCategory, r.Category).add(r)

		runs := strconv.Itoa(r.RunCount)
		if r.RunCount >= 3 {
			runs = "3+"
		}
		s.ByRunCount[runs]++

		if r.Journal != "" {
			journals[r.Journal]++
		}
	}
	if s.TotalArticles > 0 {
		pct := float64(s.Totals.WithFullText) / float64(s.TotalArticles) * 100
		s.FullTextCoverage = math.Round(pct*10) / 10
	}

	for j, n := range journals {
		s.TopJournals = append(s.TopJournals, JournalCount{Journal: j, Count: n})
	}
	sort.Slice(s.TopJournals, func(i, k int) bool {
		a, b := s.TopJournals[i], s.TopJournals[k]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Journal < b.Journal
	})
	if len(s.TopJournals) > DefaultTopJournals {
		s.TopJournals = s.TopJournals[:DefaultTopJournals]
	}
	return s
}

func bucket(m map[string]*TypeStats, key string) *TypeStats {
	s, ok := m[key]
	if !ok {
		s = &TypeStats{}
		m[key] = s
	}
	return s
}

// Files lists the paths written by Export.
type Files struct {
	Catalog    string
	Simplified string
	Summary    string
}

// Export writes the full CSV, the simplified CSV, and catalog_summary.json into dir.
func Export(c *Catalog, dir string) (*Files, *Summary, error) {
	files := &Files{
		Catalog:    filepath.Join(dir, CatalogFile),
		Simplified: filepath.Join(dir, SimplifiedFile),
		Summary:    filepath.Join(dir, SummaryFile),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create report directory: %w", err)
	}

	if err := writeCSVFile(files.Catalog, c.Rows, Columns); err != nil {
		return nil, nil, err
	}
	if err := writeCSVFile(files.Simplified, c.Rows, SimplifiedColumns); err != nil {
		return nil, nil, err
	}

	summary := Summarize(c)
	if err := store.WriteJSON(files.Summary, summary); err != nil {
		return nil, nil, fmt.Errorf("write catalog summary: %w", err)
	}
	return files, summary, nil
}

func writeCSVFile(path string, rows []Row, columns []string) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows, columns); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
