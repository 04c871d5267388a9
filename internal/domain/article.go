package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Article identifier types as they appear in esummary articleids entries.
const (
	IDTypePubMed = "pubmed"
	IDTypePMC    = "pmc"
	IDTypeDOI    = "doi"
)

// ArticleRecord is the self-contained on-disk representation of one article.
// Metadata is the source's summary document, kept as an opaque blob.
type ArticleRecord struct {
	// PMID is the primary identifier and the sole deduplication key.
	PMID string `json:"pmid"`

	// PMCID is the PubMed Central accession used to locate the full text.
	PMCID string `json:"pmcid,omitempty"`

	// Metadata is the raw esummary object for the article.
	Metadata json.RawMessage `json:"metadata"`

	// Abstract holds the article abstract when it was requested at collection time.
	Abstract string `json:"abstract,omitempty"`

	// QueryName names the query descriptor that produced the record.
	QueryName string `json:"query_name,omitempty"`

	// CollectedAt is when the record was collected.
	CollectedAt *time.Time `json:"collected_date,omitempty"`

	// Provenance is attached by the deduplicator; nil on raw collection output.
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Provenance records which collection runs observed an identifier.
type Provenance struct {
	// Runs lists distinct run names in first-seen order.
	Runs []string `json:"runs"`

	// Count is len(Runs).
	Count int `json:"count"`

	// IsDuplicate is Count > 1.
	IsDuplicate bool `json:"is_duplicate"`

	// Occurrences is the total number of metadata files found for the identifier,
	// which exceeds Count when a run stored the same article under several queries.
	Occurrences int `json:"occurrences"`
}

// NewProvenance builds a Provenance with the derived fields filled in.
func NewProvenance(runs []string, occurrences int) *Provenance {
	return &Provenance{
		Runs:        runs,
		Count:       len(runs),
		IsDuplicate: len(runs) > 1,
		Occurrences: occurrences,
	}
}

// ArticleID is a single entry of the esummary articleids list.
type ArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}

// SummaryAuthor is a single entry of the esummary authors list.
type SummaryAuthor struct {
	Name      string `json:"name"`
	LastName  string `json:"lastname,omitempty"`
	FirstName string `json:"firstname,omitempty"`
}

// DisplayName returns the author name, falling back to "Last, First".
func (a SummaryAuthor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return strings.Trim(a.LastName+", "+a.FirstName, ", ")
}

// SummaryFields is the fixed set of lookups performed on an opaque metadata blob.
// Unknown fields are ignored.
type SummaryFields struct {
	UID             string          `json:"uid"`
	Title           string          `json:"title"`
	PubDate         string          `json:"pubdate"`
	EPubDate        string          `json:"epubdate"`
	PrintPubDate    string          `json:"printpubdate"`
	Source          string          `json:"source"`
	FullJournalName string          `json:"fulljournalname"`
	Volume          string          `json:"volume"`
	Issue           string          `json:"issue"`
	Pages           string          `json:"pages"`
	PubTypes        []string        `json:"pubtype"`
	Authors         []SummaryAuthor `json:"authors"`
	ArticleIDs      []ArticleID     `json:"articleids"`
	Abstract        string          `json:"abstract"`
}

// ParseSummary decodes the fixed lookup fields from a metadata blob.
func ParseSummary(metadata json.RawMessage) (SummaryFields, error) {
	var f SummaryFields
	if len(metadata) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(metadata, &f); err != nil {
		return SummaryFields{}, err
	}
	return f, nil
}

// ArticleIDOf returns the first articleids value of the given type.
func (f SummaryFields) ArticleIDOf(idType string) string {
	for _, id := range f.ArticleIDs {
		if id.IDType == idType && id.Value != "" {
			return id.Value
		}
	}
	return ""
}

// PMCID returns the PubMed Central accession from the articleids list.
func (f SummaryFields) PMCID() string {
	return f.ArticleIDOf(IDTypePMC)
}

// DOI returns the DOI from the articleids list.
func (f SummaryFields) DOI() string {
	return f.ArticleIDOf(IDTypeDOI)
}

// PMID returns the pubmed articleid, falling back to uid.
func (f SummaryFields) PMID() string {
	if id := f.ArticleIDOf(IDTypePubMed); id != "" {
		return id
	}
	return f.UID
}

// Journal returns the full journal name, falling back to the abbreviated source.
func (f SummaryFields) Journal() string {
	if f.FullJournalName != "" {
		return f.FullJournalName
	}
	return f.Source
}

// PublicationDate returns the first non-empty of pubdate, epubdate, printpubdate.
func (f SummaryFields) PublicationDate() string {
	for _, d := range []string{f.PubDate, f.EPubDate, f.PrintPubDate} {
		if d != "" {
			return d
		}
	}
	return ""
}

// HasPubType reports whether any of the given publication types is present.
func (f SummaryFields) HasPubType(types ...string) bool {
	for _, pt := range f.PubTypes {
		for _, t := range types {
			if pt == t {
				return true
			}
		}
	}
	return false
}

// NormalizePMCID ensures the accession carries the "PMC" prefix.
func NormalizePMCID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(id), "PMC") {
		return "PMC" + id[3:]
	}
	return "PMC" + id
}
