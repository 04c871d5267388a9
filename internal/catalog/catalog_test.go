package catalog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/store"
)

type article struct {
	pmid     string
	pmcid    string
	title    string
	date     string
	pubTypes []string
	authors  []string
	journal  string
	fulltext bool
	runs     []string
}

func (a article) write(t *testing.T, root string) {
	t.Helper()
	meta := map[string]any{
		"uid":             a.pmid,
		"title":           a.title,
		"pubdate":         a.date,
		"pubtype":         a.pubTypes,
		"fulljournalname": a.journal,
		"volume":          "12",
		"articleids": []map[string]string{
			{"idtype": "pubmed", "value": a.pmid},
			{"idtype": "doi", "value": "10.1000/" + a.pmid},
		},
	}
	authors := make([]map[string]string, 0, len(a.authors))
	for _, n := range a.authors {
		authors = append(authors, map[string]string{"name": n})
	}
	meta["authors"] = authors
	raw, err := json.Marshal(meta)
	require.NoError(t, err)

	rec := &domain.ArticleRecord{PMID: a.pmid, PMCID: a.pmcid, Metadata: raw}
	if len(a.runs) > 0 {
		rec.Provenance = domain.NewProvenance(a.runs, len(a.runs))
	}
	var body []byte
	if a.fulltext {
		body = []byte("<article/>")
	}
	_, err = store.New(root).Save(rec, body)
	require.NoError(t, err)
}

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	a := filepath.Join(root, "a")
	article{pmid: "3", title: "Old review", date: "2020", pubTypes: []string{"Journal Article", "Review"}, journal: "Lancet"}.write(t, a)
	article{pmid: "1", pmcid: "PMC1", title: "Meta", date: "2023 Mar", pubTypes: []string{"Review", "Meta-Analysis"},
		authors: []string{"Smith J", "Doe A", "Roe B"}, journal: "Lancet", fulltext: true, runs: []string{"r1", "r2"}}.write(t, a)
	article{pmid: "2", title: "Guideline", date: "2023 Mar 1", pubTypes: []string{"Guideline"}, authors: []string{"Lee K"}, journal: "BMJ"}.write(t, a)
	article{pmid: "4", title: "Undated", pubTypes: nil}.write(t, a)
	article{pmid: "5", title: "Other category", date: "2024", pubTypes: []string{"Systematic Review", "Review"}}.write(t, filepath.Join(root, "b"))
	return root
}

func TestBuild(t *testing.T) {
	root := seedTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "metadata", "bad.json"), []byte("{"), 0o644))

	metrics := observability.NewMetrics("test")
	c, err := New(zerolog.Nop(), metrics).Build(root)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RecordsSkipped.WithLabelValues("catalog")))

	var order []string
	for _, r := range c.Rows {
		order = append(order, r.Category+"/"+r.PMID)
	}
	assert.Equal(t, []string{"a/1", "a/2", "a/3", "a/4", "b/5"}, order)

	meta := c.Rows[0]
	assert.Equal(t, "PMC1", meta.PMCID)
	assert.Equal(t, "10.1000/1", meta.DOI)
	assert.Equal(t, "Smith J", meta.FirstAuthor)
	assert.Equal(t, "Smith J et al. (3 authors)", meta.Authors)
	assert.Equal(t, 3, meta.AuthorCount)
	assert.Equal(t, PubTypeMetaAnalysis, meta.PrimaryType)
	assert.True(t, meta.IsReview)
	assert.True(t, meta.IsMetaAnalysis)
	assert.True(t, meta.HasFullText)
	assert.Equal(t, "12", meta.Volume)
	assert.Equal(t, []string{"r1", "r2"}, meta.Runs)
	assert.Equal(t, 2, meta.RunCount)
	assert.True(t, meta.IsDuplicate)

	guideline := c.Rows[1]
	assert.Equal(t, PubTypePracticeGuideline, guideline.PrimaryType)
	assert.True(t, guideline.IsGuideline)
	assert.False(t, guideline.HasFullText)
	assert.Equal(t, 1, guideline.RunCount)
	assert.False(t, guideline.IsDuplicate)

	assert.Equal(t, DefaultPrimaryType, c.Rows[3].PrimaryType)
	assert.True(t, c.Rows[4].IsSystematicReview)
	assert.Equal(t, PubTypeSystematicReview, c.Rows[4].PrimaryType)
}

func TestBuild_MissingRoot(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	c, err := Build(seedTree(t))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "reports")
	files, summary, err := Export(c, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(files.Catalog)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte(utf8BOM)))

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM)))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "1", records[1][1])
	assert.Equal(t, "Review, Meta-Analysis", records[1][11])
	assert.Equal(t, "r1, r2", records[1][20])

	simplified, err := os.ReadFile(files.Simplified)
	require.NoError(t, err)
	simple, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(simplified, []byte(utf8BOM)))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, SimplifiedColumns, simple[0])
	assert.Len(t, simple, 6)

	assert.Equal(t, 5, summary.TotalArticles)
	assert.Equal(t, 1, summary.Totals.WithFullText)
	assert.Equal(t, 20.0, summary.FullTextCoverage)
	assert.Equal(t, 3, summary.Totals.Reviews)
	assert.Equal(t, 4, summary.ByCategory["a"].Total)
	assert.Equal(t, 1, summary.ByPrimaryType[PubTypeMetaAnalysis].Total)
	assert.Equal(t, map[string]int{"1": 4, "2": 1}, summary.ByRunCount)
	require.NotEmpty(t, summary.TopJournals)
	assert.Equal(t, JournalCount{Journal: "Lancet", Count: 2}, summary.TopJournals[0])

	raw, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 5, decoded["total_articles"])
}

func TestSummarizeAuthors(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"Smith J"}, "Smith J"},
		{[]string{"Smith J", "Doe A"}, "Smith J; Doe A"},
		{[]string{"Smith J", "Doe A", "Roe B", "Lee K"}, "Smith J et al. (4 authors)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SummarizeAuthors(tt.names))
	}
}

func TestPrimaryType(t *testing.T) {
	tests := []struct {
		types []string
		want  string
	}{
		{[]string{"Review", "Meta-Analysis", "Systematic Review"}, "Meta-Analysis"},
		{[]string{"Review", "Systematic Review"}, "Systematic Review"},
		{[]string{"Review", "Guideline"}, "Practice Guideline"},
		{[]string{"Practice Guideline"}, "Practice Guideline"},
		{[]string{"Journal Article", "Review"}, "Review"},
		{[]string{"Case Reports"}, "Case Reports"},
		{nil, "Article"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrimaryType(tt.types), "%v", tt.types)
	}
}

func TestParsePublicationDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2023", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2023 Mar", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2023 Mar 15", time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"2023 Mar-Apr", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2021 Spring", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2022/07/04", time.Date(2022, 7, 4, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"unknown", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParsePublicationDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}
}

func TestWritePreview(t *testing.T) {
	rows := []Row{
		{PMID: "1", Category: "a", Title: strings.Repeat("敗血症の診断", 20), PrimaryType: "Review", HasFullText: true},
		{PMID: "2", Category: "a", Title: "Short"},
		{PMID: "3", Category: "b", Title: "Hidden"},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePreview(&buf, rows, 2))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[1], "PMID")
	assert.Contains(t, lines[1], "TITLE")
	assert.Contains(t, lines[3], "…")
	assert.Contains(t, lines[3], "yes")
	assert.Contains(t, lines[4], "Short")
	assert.NotContains(t, buf.String(), "Hidden")
	assert.Equal(t, "... 1 more", lines[6])

	width := runewidth.StringWidth(lines[0])
	for _, line := range lines[:6] {
		assert.Equal(t, width, runewidth.StringWidth(line), line)
	}
	assert.LessOrEqual(t, width, previewWidth())
}

// previewWidth is the widest possible table line: each cell padded by one
// space on both sides plus one border per column and a closing border.
func previewWidth() int {
	width := 3*len(previewColumns) + 1
	for _, col := range previewColumns {
		width += col.width
	}
	return width
}
