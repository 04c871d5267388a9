package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/literature-collector/internal/domain"
	"github.com/helixir/literature-collector/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultOAIURL is the PMC OAI-PMH endpoint.
	DefaultOAIURL = "https://www.ncbi.nlm.nih.gov/pmc/oai/oai.cgi"

	// DefaultIDConvURL is the PMC ID converter endpoint.
	DefaultIDConvURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of ids per esummary or efetch request.
	DefaultBatchSize = 200

	// MaxResultsLimit is the maximum results allowed per esearch request by the API.
	MaxResultsLimit = 10000

	// idconvBatchLimit is the maximum number of ids accepted by the ID converter.
	idconvBatchLimit = 200

	// DefaultTool identifies this client to NCBI.
	DefaultTool = "literature-collector"

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 64 << 20

	// sourceName labels transport errors and metrics.
	sourceName = "pubmed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// OAIURL is the PMC OAI-PMH endpoint used when FullTextSource is oai.
	OAIURL string

	// IDConvURL is the PMC ID converter endpoint.
	IDConvURL string

	// APIKey is the NCBI API key for higher rate limits.
	APIKey string

	// Email is the contact address sent with every request.
	Email string

	// Tool is the tool name sent with every request.
	Tool string

	// Timeout is the per-request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RequestsPerSecond is the sustained request rate.
	// Defaults to 3 without an API key and 10 with one.
	RequestsPerSecond float64

	// FullTextSource selects efetch (default) or OAI-PMH for full text.
	FullTextSource domain.FullTextSource

	// MaxBodySize is the largest response body accepted, in bytes. Larger
	// bodies fail with a transport error. Defaults to DefaultMaxBodySize.
	MaxBodySize int64

	// Sort is passed to esearch when set (e.g. "relevance", "pub_date").
	Sort string

	// Recorder receives per-request metrics. Optional.
	Recorder papersources.RequestRecorder
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.OAIURL == "" {
		c.OAIURL = DefaultOAIURL
	}
	if c.IDConvURL == "" {
		c.IDConvURL = DefaultIDConvURL
	}
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = papersources.DefaultRequestsPerSecond(c.APIKey != "")
	}
	if c.FullTextSource == "" {
		c.FullTextSource = domain.FullTextSourceEFetch
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
}

// Client talks to E-utilities and PMC. It owns one rate limiter through its
// HTTP client, and every operation waits on it once per underlying request.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "literature-collector/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpCfg := papersources.HTTPClientConfig{
		Source:            sourceName,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         userAgent,
		Recorder:          cfg.Recorder,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Search runs one esearch request and returns up to maxResults PMIDs plus the
// server-side match count. A query that matches nothing is not an error.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}
	if maxResults <= 0 {
		maxResults = 100
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", query)
	q.Set("retmax", strconv.Itoa(maxResults))
	q.Set("retmode", "json")
	q.Set("usehistory", "y")
	if c.config.Sort != "" {
		q.Set("sort", c.config.Sort)
	}

	body, err := c.get(ctx, "esearch", c.config.BaseURL+"/esearch.fcgi", q)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewTransportError(sourceName, "esearch", http.StatusOK, "failed to parse JSON response", err)
	}
	r := resp.ESearchResult
	if r.Error != "" {
		return nil, domain.NewTransportError(sourceName, "esearch", http.StatusOK, r.Error, nil)
	}

	count := 0
	if r.Count != "" {
		count, err = strconv.Atoi(r.Count)
		if err != nil {
			return nil, domain.NewTransportError(sourceName, "esearch", http.StatusOK, "invalid count", err)
		}
	}

	ids := r.IDList
	if ids == nil {
		ids = []string{}
	}
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}

	return &SearchResult{
		IDs:              ids,
		Count:            count,
		QueryKey:         r.QueryKey,
		WebEnv:           r.WebEnv,
		QueryTranslation: r.Translation,
	}, nil
}

// FetchSummaries retrieves esummary documents for ids in chunks of at most
// batchSize. Results keep input order for every id the server returned.
// A failed chunk is skipped; its error is joined into the returned error
// alongside the partial results.
func (c *Client) FetchSummaries(ctx context.Context, ids []string, batchSize int) ([]Summary, error) {
	if len(ids) == 0 {
		return []Summary{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	summaries := make([]Summary, 0, len(ids))
	var errs []error
	for _, chunk := range chunkIDs(ids, batchSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		batch, err := c.esummary(ctx, chunk)
		if err != nil {
			errs = append(errs, fmt.Errorf("esummary batch of %d starting at %s: %w", len(chunk), chunk[0], err))
			continue
		}
		summaries = append(summaries, batch...)
	}

	return summaries, errors.Join(errs...)
}

func (c *Client) esummary(ctx context.Context, ids []string) ([]Summary, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")

	body, err := c.get(ctx, "esummary", c.config.BaseURL+"/esummary.fcgi", q)
	if err != nil {
		return nil, err
	}

	var resp esummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewTransportError(sourceName, "esummary", http.StatusOK, "failed to parse JSON response", err)
	}
	if resp.Error != "" && resp.Result == nil {
		return nil, domain.NewTransportError(sourceName, "esummary", http.StatusOK, resp.Error, nil)
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		raw, ok := resp.Result[id]
		if !ok {
			continue
		}
		var se summaryError
		if err := json.Unmarshal(raw, &se); err == nil && se.Error != "" {
			continue
		}
		fields, err := domain.ParseSummary(raw)
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			PMID:     id,
			PMCID:    fields.PMCID(),
			Metadata: raw,
		})
	}
	return summaries, nil
}

// FetchFullText downloads the PMC XML for pmcid in a single request.
// A non-200 answer (or an OAI idDoesNotExist error) means no full text is
// available and wraps domain.ErrNotFound; anything else is a transport error.
func (c *Client) FetchFullText(ctx context.Context, pmcid string) ([]byte, error) {
	pmcid = domain.NormalizePMCID(pmcid)
	if pmcid == "" {
		return nil, domain.NewValidationError("pmcid", "must not be empty")
	}

	var (
		endpoint, operation string
		q                   = url.Values{}
	)
	switch c.config.FullTextSource {
	case domain.FullTextSourceOAI:
		operation = "oai"
		endpoint = c.config.OAIURL
		q.Set("verb", "GetRecord")
		q.Set("identifier", "oai:pubmedcentral.nih.gov:"+strings.TrimPrefix(pmcid, "PMC"))
		q.Set("metadataPrefix", "pmc")
	default:
		operation = "efetch"
		endpoint = c.config.BaseURL + "/efetch.fcgi"
		q.Set("db", "pmc")
		q.Set("id", pmcid)
		q.Set("retmode", "xml")
	}

	body, err := c.get(ctx, operation, endpoint, q)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 && te.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w (status %d)", domain.NewNotFoundError("full text", pmcid), te.StatusCode)
		}
		return nil, err
	}

	if c.config.FullTextSource == domain.FullTextSourceOAI {
		var env oaiResponse
		if err := xml.Unmarshal(body, &env); err == nil && env.Error != nil {
			return nil, fmt.Errorf("%w: %s", domain.NewNotFoundError("full text", pmcid), env.Error.Code)
		}
	}
	return body, nil
}

// FetchAbstracts retrieves PubMed XML records for ids in chunks and returns
// pmid -> abstract text. Labeled sections are rendered as "LABEL: text".
func (c *Client) FetchAbstracts(ctx context.Context, ids []string, batchSize int) (map[string]string, error) {
	abstracts := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return abstracts, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var errs []error
	for _, chunk := range chunkIDs(ids, batchSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		set, err := c.efetchPubmed(ctx, chunk)
		if err != nil {
			errs = append(errs, fmt.Errorf("efetch batch of %d starting at %s: %w", len(chunk), chunk[0], err))
			continue
		}
		for _, article := range set.Articles {
			text := extractAbstract(article.MedlineCitation.Article.Abstract)
			if text != "" {
				abstracts[article.MedlineCitation.PMID.Value] = text
			}
		}
	}

	return abstracts, errors.Join(errs...)
}

func (c *Client) efetchPubmed(ctx context.Context, ids []string) (*PubmedArticleSet, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	body, err := c.get(ctx, "efetch", c.config.BaseURL+"/efetch.fcgi", q)
	if err != nil {
		return nil, err
	}

	var result PubmedArticleSet
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.NewTransportError(sourceName, "efetch", http.StatusOK, "failed to parse XML response", err)
	}
	return &result, nil
}

// ConvertIDs maps PMIDs to PMCIDs through the PMC ID converter. PMIDs without
// a PMC record are absent from the result.
func (c *Client) ConvertIDs(ctx context.Context, ids []string) (map[string]string, error) {
	mapping := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return mapping, nil
	}

	var errs []error
	for _, chunk := range chunkIDs(ids, idconvBatchLimit) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		q := url.Values{}
		q.Set("ids", strings.Join(chunk, ","))
		q.Set("format", "json")

		body, err := c.get(ctx, "idconv", c.config.IDConvURL, q)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var resp idconvResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			errs = append(errs, domain.NewTransportError(sourceName, "idconv", http.StatusOK, "failed to parse JSON response", err))
			continue
		}
		if resp.Status != "" && resp.Status != "ok" {
			errs = append(errs, domain.NewTransportError(sourceName, "idconv", http.StatusOK, resp.Message, nil))
			continue
		}
		for _, rec := range resp.Records {
			if rec.PMID != "" && rec.PMCID != "" {
				mapping[string(rec.PMID)] = rec.PMCID
			}
		}
	}

	return mapping, errors.Join(errs...)
}

// get performs one rate-limited GET and returns the body of a 200 response.
// Every other outcome is a *domain.TransportError; StatusCode is zero when no
// response was received and 200 when the body could not be read in full.
func (c *Client) get(ctx context.Context, operation, endpoint string, q url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid %s URL: %w", operation, err)
	}
	c.addIdentity(q)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewTransportError(sourceName, operation, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewTransportError(sourceName, operation, resp.StatusCode, strings.TrimSpace(string(snippet)), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodySize+1))
	if err != nil {
		return nil, domain.NewTransportError(sourceName, operation, resp.StatusCode, "failed to read response", err)
	}
	if int64(len(body)) > c.config.MaxBodySize {
		return nil, domain.NewTransportError(sourceName, operation, resp.StatusCode,
			fmt.Sprintf("response body exceeds %d bytes", c.config.MaxBodySize), nil)
	}
	return body, nil
}

func (c *Client) addIdentity(q url.Values) {
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.Tool != "" {
		q.Set("tool", c.config.Tool)
	}
}

// chunkIDs splits ids into consecutive groups of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}
