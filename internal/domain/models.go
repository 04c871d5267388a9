// Package domain provides the article, query, and run-summary models of the literature collector.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueryStatus represents the outcome of one query within a collection run.
type QueryStatus string

const (
	QueryStatusCompleted QueryStatus = "completed"
	QueryStatusPartial   QueryStatus = "partial"
	QueryStatusFailed    QueryStatus = "failed"
	QueryStatusCancelled QueryStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s QueryStatus) IsTerminal() bool {
	switch s {
	case QueryStatusCompleted, QueryStatusPartial, QueryStatusFailed, QueryStatusCancelled:
		return true
	default:
		return false
	}
}

// FullTextSource selects the endpoint used to retrieve PMC full text.
type FullTextSource string

const (
	FullTextSourceEFetch FullTextSource = "efetch"
	FullTextSourceOAI    FullTextSource = "oai"
)

// QueryDescriptor is one named search to run.
type QueryDescriptor struct {
	Name        string `yaml:"name" json:"name" validate:"required,max=100,slug"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Query       string `yaml:"query" json:"query" validate:"required"`
	MaxResults  int    `yaml:"max_results" json:"max_results" validate:"min=1,max=10000"`
}

// CollectionSummary describes the outcome of a single query.
type CollectionSummary struct {
	QueryName          string      `json:"query_name"`
	Description        string      `json:"description,omitempty"`
	Query              string      `json:"query"`
	RunID              uuid.UUID   `json:"run_id"`
	Status             QueryStatus `json:"status"`
	TotalFound         int         `json:"total_found"`
	IDsReturned        int         `json:"ids_returned"`
	MetadataCollected  int         `json:"metadata_collected"`
	FullTextAvailable  int         `json:"fulltext_available"`
	FullTextCollected  int         `json:"fulltext_collected"`
	FullTextNotFound   int         `json:"fulltext_not_found"`
	FullTextErrors     int         `json:"fulltext_errors"`
	AbstractsCollected int         `json:"abstracts_collected,omitempty"`
	Error              string      `json:"error,omitempty"`
	StartedAt          time.Time   `json:"started_at"`
	FinishedAt         time.Time   `json:"finished_at"`
}

// FullTextRate returns the share of metadata records that also have full text.
func (s *CollectionSummary) FullTextRate() float64 {
	if s.MetadataCollected == 0 {
		return 0
	}
	return float64(s.FullTextCollected) / float64(s.MetadataCollected) * 100
}

// RunSummary aggregates the per-query summaries of one collection run.
type RunSummary struct {
	RunID                  uuid.UUID            `json:"run_id"`
	StartedAt              time.Time            `json:"started_at"`
	FinishedAt             time.Time            `json:"finished_at"`
	OutputDirectory        string               `json:"output_directory"`
	TotalQueries           int                  `json:"total_queries"`
	FailedQueries          int                  `json:"failed_queries"`
	TotalMetadataCollected int                  `json:"total_metadata_collected"`
	TotalFullTextCollected int                  `json:"total_fulltext_collected"`
	TotalFullTextNotFound  int                  `json:"total_fulltext_not_found"`
	TotalFullTextErrors    int                  `json:"total_fulltext_errors"`
	Categories             []*CollectionSummary `json:"categories"`
}

// Add folds a finished query summary into the run totals.
func (r *RunSummary) Add(s *CollectionSummary) {
	r.Categories = append(r.Categories, s)
	r.TotalQueries++
	if s.Status == QueryStatusFailed {
		r.FailedQueries++
	}
	r.TotalMetadataCollected += s.MetadataCollected
	r.TotalFullTextCollected += s.FullTextCollected
	r.TotalFullTextNotFound += s.FullTextNotFound
	r.TotalFullTextErrors += s.FullTextErrors
}
