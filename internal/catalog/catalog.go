// Package catalog flattens a tree of article records into tabular form and
// exports it as CSV along with summary statistics.
package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/store"
)

// Publication types that drive the primary type and the row flags.
const (
	PubTypeMetaAnalysis      = "Meta-Analysis"
	PubTypeSystematicReview  = "Systematic Review"
	PubTypePracticeGuideline = "Practice Guideline"
	PubTypeGuideline         = "Guideline"
	PubTypeReview            = "Review"

	// DefaultPrimaryType is used when a record lists no publication type.
	DefaultPrimaryType = "Article"
)

// Row is one catalog line.
type Row struct {
	Category           string
	PMID               string
	PMCID              string
	DOI                string
	Title              string
	FirstAuthor        string
	Authors            string
	AuthorCount        int
	Journal            string
	PublicationDate    string
	PrimaryType        string
	PublicationTypes   []string
	IsReview           bool
	IsMetaAnalysis     bool
	IsGuideline        bool
	IsSystematicReview bool
	HasFullText        bool
	Volume             string
	Issue              string
	Pages              string
	Runs               []string
	RunCount           int
	IsDuplicate        bool

	published time.Time
}

// Catalog is the result of scanning one tree.
type Catalog struct {
	Root    string
	Rows    []Row
	Skipped int
}

// Builder scans record trees.
type Builder struct {
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Builder. A nil metrics gets a private, unexported set.
func New(logger zerolog.Logger, metrics *observability.Metrics) *Builder {
	if metrics == nil {
		metrics = observability.NewMetrics("litcollect")
	}
	return &Builder{logger: logger, metrics: metrics}
}

// Build is New(zerolog.Nop(), nil).Build(root).
func Build(root string) (*Catalog, error) {
	return New(zerolog.Nop(), nil).Build(root)
}

// Build reads every metadata file under root and returns the sorted rows.
// Unreadable files are logged and skipped.
func (b *Builder) Build(root string) (*Catalog, error) {
	files, err := store.MetadataFiles(root)
	if err != nil {
		return nil, err
	}

	c := &Catalog{Root: root, Rows: make([]Row, 0, len(files))}
	for _, path := range files {
		record, err := store.Load(path)
		if err != nil {
			b.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable metadata file")
			b.metrics.RecordSkipped("catalog")
			c.Skipped++
			continue
		}
		fields, err := domain.ParseSummary(record.Metadata)
		if err != nil {
			b.logger.Warn().Err(err).Str("file", path).Msg("skipping record with malformed metadata")
			b.metrics.RecordSkipped("catalog")
			c.Skipped++
			continue
		}
		c.Rows = append(c.Rows, NewRow(store.Category(root, path), path, record, fields))
	}

	SortRows(c.Rows)
	b.logger.Info().Int("rows", len(c.Rows)).Int("skipped", c.Skipped).Str("root", root).Msg("catalog built")
	return c, nil
}

// NewRow flattens one record. metadataFile locates the sibling full text.
func NewRow(category, metadataFile string, record *domain.ArticleRecord, fields domain.SummaryFields) Row {
	pmcid := record.PMCID
	if pmcid == "" {
		pmcid = fields.PMCID()
	}

	names := make([]string, 0, len(fields.Authors))
	for _, a := range fields.Authors {
		if n := strings.TrimSpace(a.DisplayName()); n != "" {
			names = append(names, n)
		}
	}

	row := Row{
		Category:           category,
		PMID:               record.PMID,
		PMCID:              pmcid,
		DOI:                fields.DOI(),
		Title:              strings.TrimSpace(fields.Title),
		Authors:            SummarizeAuthors(names),
		AuthorCount:        len(names),
		Journal:            fields.Journal(),
		PublicationDate:    fields.PublicationDate(),
		PrimaryType:        PrimaryType(fields.PubTypes),
		PublicationTypes:   fields.PubTypes,
		IsReview:           fields.HasPubType(PubTypeReview),
		IsMetaAnalysis:     fields.HasPubType(PubTypeMetaAnalysis),
		IsGuideline:        fields.HasPubType(PubTypePracticeGuideline, PubTypeGuideline),
		IsSystematicReview: fields.HasPubType(PubTypeSystematicReview),
		HasFullText:        store.HasFullText(metadataFile, pmcid),
		Volume:             fields.Volume,
		Issue:              fields.Issue,
		Pages:              fields.Pages,
		RunCount:           1,
	}
	if len(names) > 0 {
		row.FirstAuthor = names[0]
	}
	if p := record.Provenance; p != nil {
		row.Runs = p.Runs
		row.RunCount = p.Count
		row.IsDuplicate = p.IsDuplicate
	}
	row.published, _ = ParsePublicationDate(row.PublicationDate)
	return row
}

// SummarizeAuthors lists up to two authors in full and abbreviates longer lists.
func SummarizeAuthors(names []string) string {
	switch {
	case len(names) == 0:
		return ""
	case len(names) <= 2:
		return strings.Join(names, "; ")
	default:
		return names[0] + " et al. (" + strconv.Itoa(len(names)) + " authors)"
	}
}

// PrimaryType picks the most specific evidence type present.
func PrimaryType(pubTypes []string) string {
	has := func(types ...string) bool {
		for _, pt := range pubTypes {
			for _, t := range types {
				if pt == t {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has(PubTypeMetaAnalysis):
		return PubTypeMetaAnalysis
	case has(PubTypeSystematicReview):
		return PubTypeSystematicReview
	case has(PubTypePracticeGuideline, PubTypeGuideline):
		return PubTypePracticeGuideline
	case has(PubTypeReview):
		return PubTypeReview
	case len(pubTypes) > 0:
		return pubTypes[0]
	default:
		return DefaultPrimaryType
	}
}

var pubDatePattern = regexp.MustCompile(`^(\d{4})(?:[ /-]+([A-Za-z]{3,}|\d{1,2}))?(?:[ /-]+(\d{1,2}))?`)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
	"win": time.January, "spr": time.March, "sum": time.June, "fal": time.September, "aut": time.September,
}

// ParsePublicationDate reads PubMed's free-form dates ("2023", "2023 Mar",
// "2023 Mar 15", "2023 Mar-Apr", "2023 Spring", "2023/03/15"). Missing parts
// default to the earliest value.
func ParsePublicationDate(s string) (time.Time, bool) {
	m := pubDatePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, day := time.January, 1

	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil {
			if n >= 1 && n <= 12 {
				month = time.Month(n)
			}
		} else if mo, ok := monthByPrefix[strings.ToLower(m[2][:3])]; ok {
			month = mo
		}
	}
	if m[3] != "" {
		if n, _ := strconv.Atoi(m[3]); n >= 1 && n <= 31 {
			day = n
		}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

// SortRows orders rows by category ascending, publication date descending
// with undated rows last, then PMID ascending.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if !a.published.Equal(b.published) {
			if a.published.IsZero() || b.published.IsZero() {
				return b.published.IsZero()
			}
			return a.published.After(b.published)
		}
		return a.PMID < b.PMID
	})
}
