// Package pubmed provides a client for the NCBI E-utilities API and the PMC
// full-text services (efetch, OAI-PMH, ID converter).
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strconv"
)

// esearchResponse is the JSON envelope returned by esearch.fcgi with retmode=json.
type esearchResponse struct {
	ESearchResult ESearchResult `json:"esearchresult"`
}

// ESearchResult carries the matching PMIDs. Numeric fields arrive as strings.
type ESearchResult struct {
	Count       string     `json:"count"`
	RetMax      string     `json:"retmax"`
	RetStart    string     `json:"retstart"`
	IDList      []string   `json:"idlist"`
	QueryKey    string     `json:"querykey,omitempty"`
	WebEnv      string     `json:"webenv,omitempty"`
	ErrorList   *ErrorList `json:"errorlist,omitempty"`
	Error       string     `json:"ERROR,omitempty"`
	Translation string     `json:"querytranslation,omitempty"`
}

// ErrorList contains soft errors reported by esearch.
type ErrorList struct {
	PhrasesNotFound []string `json:"phrasesnotfound,omitempty"`
	FieldsNotFound  []string `json:"fieldsnotfound,omitempty"`
}

// SearchResult is the outcome of a single esearch request.
type SearchResult struct {
	// IDs are the PMIDs in server order, at most maxResults of them.
	IDs []string

	// Count is the total number of matches reported by the server.
	Count int

	// QueryKey and WebEnv identify the server-side history entry.
	QueryKey string
	WebEnv   string

	// QueryTranslation is the expression as interpreted by the server.
	QueryTranslation string
}

// esummaryResponse is the JSON envelope returned by esummary.fcgi with retmode=json.
// Result maps each uid to its summary object plus a "uids" list.
type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
	Error  string                     `json:"error,omitempty"`
}

// summaryError detects per-uid error entries inside an esummary result.
type summaryError struct {
	Error string `json:"error"`
}

// Summary is one esummary document, kept opaque apart from the identifiers.
type Summary struct {
	PMID     string
	PMCID    string
	Metadata json.RawMessage
}

// idconvResponse is the JSON body returned by the PMC ID converter.
type idconvResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Records []idconvRecord `json:"records"`
}

type idconvRecord struct {
	PMID   flexString `json:"pmid"`
	PMCID  string     `json:"pmcid"`
	DOI    string     `json:"doi,omitempty"`
	Status string     `json:"status,omitempty"`
	ErrMsg string     `json:"errmsg,omitempty"`
}

// flexString accepts both JSON strings and numbers; the ID converter has emitted both for pmid.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// PubmedArticleSet represents the response from efetch.fcgi with db=pubmed and retmode=xml.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle represents a single article in the PubMed database.
type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
}

// MedlineCitation contains the core bibliographic information.
type MedlineCitation struct {
	PMID    PMID    `xml:"PMID"`
	Article Article `xml:"Article"`
}

// PMID represents the PubMed identifier with optional version.
type PMID struct {
	Version int    `xml:"Version,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// Article contains the subset of article metadata read from efetch.
type Article struct {
	ArticleTitle string    `xml:"ArticleTitle"`
	Abstract     *Abstract `xml:"Abstract,omitempty"`
}

// Abstract contains the article abstract, which may have multiple sections.
type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText"`
	CopyrightInfo string         `xml:"CopyrightInformation,omitempty"`
}

// AbstractText represents a section of the abstract.
// Structured abstracts have labeled sections (Background, Methods, Results, etc.).
type AbstractText struct {
	Label       string `xml:"Label,attr,omitempty"`
	NlmCategory string `xml:"NlmCategory,attr,omitempty"`
	Value       string `xml:",chardata"`
}

// oaiResponse is the OAI-PMH envelope; Error is set when the record does not exist.
type oaiResponse struct {
	XMLName xml.Name  `xml:"OAI-PMH"`
	Error   *oaiError `xml:"error,omitempty"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}
