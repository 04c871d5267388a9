package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSummary = `{
	"uid": "12345",
	"pubdate": "2021 Mar 4",
	"epubdate": "2021 Feb 1",
	"source": "Clin Infect Dis",
	"fulljournalname": "Clinical infectious diseases",
	"title": "Sepsis management",
	"volume": "72",
	"issue": "5",
	"pages": "e1-e10",
	"pubtype": ["Journal Article", "Review"],
	"authors": [{"name": "Smith J", "authtype": "Author"}, {"name": "Doe A"}],
	"articleids": [
		{"idtype": "pubmed", "idtypen": 1, "value": "12345"},
		{"idtype": "doi", "idtypen": 3, "value": "10.1000/xyz"},
		{"idtype": "pmc", "idtypen": 8, "value": "PMC777"}
	]
}`

func TestQueryStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   QueryStatus
		expected bool
	}{
		{QueryStatusCompleted, true},
		{QueryStatusPartial, true},
		{QueryStatusFailed, true},
		{QueryStatusCancelled, true},
		{QueryStatus("running"), false},
		{QueryStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestParseSummary(t *testing.T) {
	t.Run("fixed lookups", func(t *testing.T) {
		f, err := ParseSummary(json.RawMessage(sampleSummary))
		require.NoError(t, err)

		assert.Equal(t, "12345", f.PMID())
		assert.Equal(t, "PMC777", f.PMCID())
		assert.Equal(t, "10.1000/xyz", f.DOI())
		assert.Equal(t, "Clinical infectious diseases", f.Journal())
		assert.Equal(t, "2021 Mar 4", f.PublicationDate())
		assert.True(t, f.HasPubType("Review"))
		assert.True(t, f.HasPubType("Guideline", "Journal Article"))
		assert.False(t, f.HasPubType("Case Reports"))
		require.Len(t, f.Authors, 2)
		assert.Equal(t, "Smith J", f.Authors[0].DisplayName())
	})

	t.Run("empty metadata", func(t *testing.T) {
		f, err := ParseSummary(nil)
		require.NoError(t, err)
		assert.Empty(t, f.PMID())
		assert.Empty(t, f.PMCID())
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseSummary(json.RawMessage(`{"uid":`))
		assert.Error(t, err)
	})

	t.Run("uid fallback and journal fallback", func(t *testing.T) {
		f, err := ParseSummary(json.RawMessage(`{"uid":"99","source":"BMJ","epubdate":"2020"}`))
		require.NoError(t, err)
		assert.Equal(t, "99", f.PMID())
		assert.Equal(t, "BMJ", f.Journal())
		assert.Equal(t, "2020", f.PublicationDate())
	})
}

func TestSummaryAuthor_DisplayName(t *testing.T) {
	assert.Equal(t, "Smith J", SummaryAuthor{Name: "Smith J"}.DisplayName())
	assert.Equal(t, "Smith, John", SummaryAuthor{LastName: "Smith", FirstName: "John"}.DisplayName())
	assert.Equal(t, "Smith", SummaryAuthor{LastName: "Smith"}.DisplayName())
	assert.Empty(t, SummaryAuthor{}.DisplayName())
}

func TestNormalizePMCID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PMC123", "PMC123"},
		{"pmc123", "PMC123"},
		{"123", "PMC123"},
		{" PMC9 ", "PMC9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePMCID(tt.input))
		})
	}
}

func TestNewProvenance(t *testing.T) {
	p := NewProvenance([]string{"a", "b"}, 3)
	assert.Equal(t, 2, p.Count)
	assert.True(t, p.IsDuplicate)
	assert.Equal(t, 3, p.Occurrences)

	single := NewProvenance([]string{"a"}, 2)
	assert.Equal(t, 1, single.Count)
	assert.False(t, single.IsDuplicate)
}

func TestArticleRecord_JSONKeys(t *testing.T) {
	rec := ArticleRecord{
		PMID:      "1",
		PMCID:     "PMC1",
		Metadata:  json.RawMessage(`{"uid":"1"}`),
		QueryName: "sepsis",
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "1", m["pmid"])
	assert.Equal(t, "PMC1", m["pmcid"])
	assert.Equal(t, "sepsis", m["query_name"])
	assert.NotContains(t, m, "provenance")
	assert.NotContains(t, m, "collected_date")
}

func TestRunSummary_Add(t *testing.T) {
	run := &RunSummary{RunID: uuid.New()}
	run.Add(&CollectionSummary{QueryName: "a", Status: QueryStatusCompleted, MetadataCollected: 5, FullTextCollected: 2, FullTextNotFound: 1})
	run.Add(&CollectionSummary{QueryName: "b", Status: QueryStatusFailed, Error: "boom"})

	assert.Equal(t, 2, run.TotalQueries)
	assert.Equal(t, 1, run.FailedQueries)
	assert.Equal(t, 5, run.TotalMetadataCollected)
	assert.Equal(t, 2, run.TotalFullTextCollected)
	assert.Equal(t, 1, run.TotalFullTextNotFound)
	assert.Len(t, run.Categories, 2)
}

func TestCollectionSummary_FullTextRate(t *testing.T) {
	assert.Zero(t, (&CollectionSummary{}).FullTextRate())
	assert.InDelta(t, 40.0, (&CollectionSummary{MetadataCollected: 5, FullTextCollected: 2}).FullTextRate(), 0.001)
}

func TestErrors(t *testing.T) {
	t.Run("not found unwraps to sentinel", func(t *testing.T) {
		err := fmt.Errorf("fetch: %w", NewNotFoundError("fulltext", "PMC1"))
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, IsTransport(err))
		assert.Equal(t, "fetch: fulltext not found: PMC1", err.Error())
	})

	t.Run("validation unwraps to invalid input", func(t *testing.T) {
		err := NewValidationError("name", "required")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, "validation error: name: required", err.Error())
	})

	t.Run("transport matches sentinel and cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewTransportError("pubmed", "esearch", 0, "", cause)
		assert.True(t, IsTransport(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "pubmed esearch failed: connection refused", err.Error())

		var te *TransportError
		require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &te)
		assert.Equal(t, "esearch", te.Operation)
	})

	t.Run("transport with status", func(t *testing.T) {
		err := NewTransportError("pubmed", "esummary", 502, "bad gateway", nil)
		assert.Equal(t, "pubmed esummary failed (status 502): bad gateway", err.Error())
		assert.False(t, errors.Is(err, ErrNotFound))
	})

	t.Run("malformed record", func(t *testing.T) {
		err := NewMalformedRecordError("a.json", errors.New("eof"))
		assert.ErrorIs(t, err, ErrMalformedRecord)
		assert.Equal(t, "malformed record a.json: eof", err.Error())
	})
}
