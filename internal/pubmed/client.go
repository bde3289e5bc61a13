// Package pubmed fetches recent biomedical abstracts from the NCBI E-utilities API.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"medichat/internal/models"
)

const (
	defaultSearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	defaultFetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// Client queries the PubMed search and fetch endpoints for recent literature
// matching a fixed topic filter. Abstract fetches go through a process-wide
// throttle so the API's rate limit is respected across a whole batch.
type Client struct {
	searchURL string
	fetchURL  string
	apiKey    string
	term      string
	http      *http.Client
	throttle  *Throttle
	logger    *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client (used by tests to point at a fake API).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBaseURLs overrides the search and fetch endpoints.
func WithBaseURLs(searchURL, fetchURL string) ClientOption {
	return func(c *Client) { c.searchURL, c.fetchURL = searchURL, fetchURL }
}

// WithLogger sets a logger for fetch failures and progress.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithThrottle replaces the request throttle (used by tests with a fake clock).
func WithThrottle(t *Throttle) ClientOption {
	return func(c *Client) { c.throttle = t }
}

// NewClient creates a PubMed client searching for term, throttled to
// maxRequestsPerSec abstract fetches per second.
func NewClient(apiKey, term string, maxRequestsPerSec int, opts ...ClientOption) *Client {
	c := &Client{
		searchURL: defaultSearchURL,
		fetchURL:  defaultFetchURL,
		apiKey:    apiKey,
		term:      term,
		http:      &http.Client{Timeout: 30 * time.Second},
		throttle:  NewThrottle(maxRequestsPerSec),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// FetchRecentPMIDs returns identifiers of records matching the topic filter
// published within the last days days, newest first, capped at maxCount.
func (c *Client) FetchRecentPMIDs(ctx context.Context, days, maxCount int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", c.term)
	params.Set("reldate", strconv.Itoa(days))
	params.Set("retmax", strconv.Itoa(maxCount))
	params.Set("sort", "pub+date")
	params.Set("retmode", "json")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search API error: status %d, body: %s", resp.StatusCode, string(b))
	}

	var out esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out.ESearchResult.IDList, nil
}

// FetchAbstract returns the abstract text for a record, with multi-paragraph
// content joined by newlines. Any fetch or parse failure is logged and yields
// an empty string; failures never abort a batch.
func (c *Client) FetchAbstract(ctx context.Context, pmid string) string {
	c.throttle.Wait()

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL+"?"+params.Encode(), nil)
	if err != nil {
		c.logger.Warn("abstract fetch failed", zap.String("pmid", pmid), zap.Error(err))
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("abstract fetch failed", zap.String("pmid", pmid), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("abstract fetch failed", zap.String("pmid", pmid), zap.Int("status", resp.StatusCode))
		return ""
	}

	abstract, err := extractAbstract(resp.Body)
	if err != nil {
		c.logger.Warn("abstract parse failed", zap.String("pmid", pmid), zap.Error(err))
		return ""
	}
	return abstract
}

// FetchDocuments fetches recent abstracts as provenance-tagged documents.
// Records whose abstract is missing or unfetchable are skipped.
func (c *Client) FetchDocuments(ctx context.Context, days, maxCount int) ([]models.Document, error) {
	pmids, err := c.FetchRecentPMIDs(ctx, days, maxCount)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(pmids))
	for _, pmid := range pmids {
		abstract := c.FetchAbstract(ctx, pmid)
		if abstract == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: abstract,
			Meta:    models.Metadata{Source: "PubMed:" + pmid},
		})
	}
	c.logger.Info("fetched documents", zap.Int("pmids", len(pmids)), zap.Int("with_abstract", len(docs)))
	return docs, nil
}

// extractAbstract pulls the text of the first <Abstract> element (matched
// case-insensitively) from the efetch XML, joining paragraph elements with
// newlines.
func extractAbstract(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		inAbstract bool
		depth      int
		parts      []string
		cur        strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if inAbstract {
				depth++
			} else if strings.EqualFold(t.Name.Local, "Abstract") {
				inAbstract = true
				depth = 1
			}
		case xml.EndElement:
			if !inAbstract {
				continue
			}
			depth--
			if depth == 0 {
				flush()
				return strings.Join(parts, "\n"), nil
			}
			if strings.EqualFold(t.Name.Local, "AbstractText") {
				flush()
			}
		case xml.CharData:
			if inAbstract {
				cur.Write(t)
			}
		}
	}
	flush()
	return strings.Join(parts, "\n"), nil
}
