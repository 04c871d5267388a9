// Package validate scores article content for clinically useful material by
// searching abstracts and full text for fixed keyword categories.
package validate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/observability"
	"github.com/helixir/literature-collector/internal/store"
)

const (
	// ReportFile is the name of the validation report.
	ReportFile = "content_validation_report.json"

	// DefaultSampleSize is the number of records validated per run.
	DefaultSampleSize = 100

	// DefaultLowQualityThreshold is the score below which an article is listed as low quality.
	DefaultLowQualityThreshold = 40
)

// Text sources used for scoring.
const (
	SourceFullText = "fulltext"
	SourceAbstract = "abstract"
	SourceNone     = "none"
)

// Score distribution bins.
const (
	BinExcellent = "Excellent (80-100)"
	BinGood      = "Good (60-79)"
	BinFair      = "Fair (40-59)"
	BinPoor      = "Poor (20-39)"
	BinVeryPoor  = "Very Poor (0-19)"
)

// Bin returns the distribution bin of a score.
func Bin(score int) string {
	switch {
	case score >= 80:
		return BinExcellent
	case score >= 60:
		return BinGood
	case score >= 40:
		return BinFair
	case score >= 20:
		return BinPoor
	default:
		return BinVeryPoor
	}
}

// Options controls a validation run.
type Options struct {
	SampleSize          int
	LowQualityThreshold int
	Categories          []Category
}

// ArticleValidation is the result for one record.
type ArticleValidation struct {
	PMID               string           `json:"pmid"`
	PMCID              string           `json:"pmcid,omitempty"`
	Title              string           `json:"title,omitempty"`
	HasFullText        bool             `json:"has_fulltext"`
	Source             string           `json:"source"`
	AbstractValidation map[string]Match `json:"abstract_validation"`
	FullTextValidation map[string]Match `json:"fulltext_validation"`
	Score              int              `json:"overall_score"`
}

// Presence counts sampled articles containing a category anywhere.
type Presence struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// LowQualityArticle is an article scoring under the threshold.
type LowQualityArticle struct {
	PMID  string `json:"pmid"`
	Score int    `json:"score"`
}

// Report summarizes a validation run.
type Report struct {
	Root                 string               `json:"root"`
	SampleSize           int                  `json:"sample_size"`
	TotalArticles        int                  `json:"total_articles"`
	ArticlesWithFullText int                  `json:"articles_with_fulltext"`
	AverageQualityScore  float64              `json:"average_quality_score"`
	ScoreDistribution    map[string]int       `json:"score_distribution"`
	CategoryPresence     map[string]Presence  `json:"category_presence"`
	LowQualityThreshold  int                  `json:"low_quality_threshold"`
	LowQualityArticles   []LowQualityArticle  `json:"low_quality_articles"`
	SkippedFiles         int                  `json:"skipped_files"`
	Validations          []*ArticleValidation `json:"validations"`
}

// Validator scores records. It never modifies its input tree.
type Validator struct {
	opts    Options
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Validator. A nil metrics gets a private, unexported set.
func New(opts Options, logger zerolog.Logger, metrics *observability.Metrics) *Validator {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.LowQualityThreshold <= 0 {
		opts.LowQualityThreshold = DefaultLowQualityThreshold
	}
	if len(opts.Categories) == 0 {
		opts.Categories = DefaultCategories()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("litcollect")
	}
	return &Validator{opts: opts, logger: logger, metrics: metrics}
}

// ValidateRecord scores one record. The full text, when present, is read
// from the sibling fulltext directory of metadataFile and preferred over the
// abstract.
func (v *Validator) ValidateRecord(metadataFile string, record *domain.ArticleRecord) *ArticleValidation {
	fields, err := domain.ParseSummary(record.Metadata)
	if err != nil {
		v.logger.Debug().Err(err).Str("pmid", record.PMID).Msg("metadata not decodable")
	}

	pmcid := record.PMCID
	if pmcid == "" {
		pmcid = fields.PMCID()
	}
	abstract := record.Abstract
	if abstract == "" {
		abstract = fields.Abstract
	}

	result := &ArticleValidation{
		PMID:               record.PMID,
		PMCID:              pmcid,
		Title:              fields.Title,
		HasFullText:        store.HasFullText(metadataFile, pmcid),
		Source:             SourceNone,
		AbstractValidation: map[string]Match{},
		FullTextValidation: map[string]Match{},
	}

	if abstract != "" {
		result.Score, result.AbstractValidation = Score(v.opts.Categories, abstract)
		result.Source = SourceAbstract
	}

	if result.HasFullText {
		text, err := v.fullText(store.FullTextPath(metadataFile, pmcid))
		if err != nil {
			articleLogger := observability.WithArticleContext(v.logger, record.PMID, pmcid)
			articleLogger.Warn().Err(err).Msg("full text not parseable, scoring abstract")
			return result
		}
		result.Score, result.FullTextValidation = Score(v.opts.Categories, text)
		result.Source = SourceFullText
	}
	return result
}

func (v *Validator) fullText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ft, err := ParseFullText(data)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return ft.Text(), nil
}

// Run validates the first SampleSize metadata files under root in sorted
// order and, when reportDir is non-empty, writes content_validation_report.json there.
func (v *Validator) Run(root, reportDir string) (*Report, error) {
	files, err := store.MetadataFiles(root)
	if err != nil {
		return nil, err
	}

	sample := files
	if len(sample) > v.opts.SampleSize {
		sample = sample[:v.opts.SampleSize]
	}

	report := &Report{
		Root:                root,
		TotalArticles:       len(files),
		ScoreDistribution:   map[string]int{BinExcellent: 0, BinGood: 0, BinFair: 0, BinPoor: 0, BinVeryPoor: 0},
		CategoryPresence:    map[string]Presence{},
		LowQualityThreshold: v.opts.LowQualityThreshold,
		LowQualityArticles:  []LowQualityArticle{},
		Validations:         make([]*ArticleValidation, 0, len(sample)),
	}
	presence := map[string]int{}

	v.logger.Info().Int("total", len(files)).Int("sample", len(sample)).Str("root", root).Msg("validating content")
	for i, path := range sample {
		record, err := store.Load(path)
		if err != nil {
			v.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable metadata file")
			v.metrics.RecordSkipped("validate")
			report.SkippedFiles++
			continue
		}

		result := v.ValidateRecord(path, record)
		report.Validations = append(report.Validations, result)
		v.metrics.RecordValidationScore(result.Score)

		if result.HasFullText {
			report.ArticlesWithFullText++
		}
		report.ScoreDistribution[Bin(result.Score)]++
		if result.Score < v.opts.LowQualityThreshold {
			report.LowQualityArticles = append(report.LowQualityArticles, LowQualityArticle{PMID: result.PMID, Score: result.Score})
		}
		for _, c := range v.opts.Categories {
			if result.AbstractValidation[c.Name].Found || result.FullTextValidation[c.Name].Found {
				presence[c.Name]++
			}
		}

		if (i+1)%10 == 0 {
			v.logger.Debug().Int("validated", i+1).Int("sample", len(sample)).Msg("progress")
		}
	}

	report.SampleSize = len(report.Validations)
	if n := report.SampleSize; n > 0 {
		total := 0
		for _, r := range report.Validations {
			total += r.Score
		}
		report.AverageQualityScore = round1(float64(total) / float64(n))
		for _, c := range v.opts.Categories {
			report.CategoryPresence[c.Name] = Presence{
				Count:      presence[c.Name],
				Percentage: round1(float64(presence[c.Name]) / float64(n) * 100),
			}
		}
	}

	if reportDir != "" {
		if err := store.WriteJSON(filepath.Join(reportDir, ReportFile), report); err != nil {
			return nil, fmt.Errorf("write validation report: %w", err)
		}
	}

	v.logger.Info().
		Int("sample", report.SampleSize).
		Int("fulltext", report.ArticlesWithFullText).
		Float64("average_score", report.AverageQualityScore).
		Int("low_quality", len(report.LowQualityArticles)).
		Msg("validation complete")
	return report, nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
