// Package search talks to a Firecrawl-compatible search and scrape API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonesrussell/north-cloud/research/internal/config"
	"github.com/jonesrussell/north-cloud/research/internal/infra/httpclient"
)

// Scrape formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("search service not configured")

// Request is one search call.
type Request struct {
	Query   string
	Limit   int
	Scrape  bool
	Formats []string
}

// Document is one search hit, scraped when the request asked for it.
type Document struct {
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	Description string         `json:"description"`
	Markdown    string         `json:"markdown"`
	HTML        string         `json:"html"`
	Metadata    map[string]any `json:"metadata"`
}

// Content returns the best available body text.
func (d Document) Content() string {
	if strings.TrimSpace(d.Markdown) != "" {
		return d.Markdown
	}
	return d.Description
}

// MetadataString returns the first non-empty string metadata value among keys.
func (d Document) MetadataString(keys ...string) string {
	for _, k := range keys {
		if s, ok := d.Metadata[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Client issues search requests. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a client. httpClient may be nil.
func New(cfg config.SearchConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpclient.New(cfg.Timeout)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchBody struct {
	Query         string         `json:"query"`
	Limit         int            `json:"limit"`
	ScrapeOptions *scrapeOptions `json:"scrapeOptions,omitempty"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type searchResponse struct {
	Success bool       `json:"success"`
	Data    []Document `json:"data"`
	Error   string     `json:"error"`
}

// Search runs req and returns the hits in upstream order.
func (c *Client) Search(ctx context.Context, req Request) ([]Document, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body := searchBody{Query: req.Query, Limit: req.Limit}
	if req.Scrape {
		formats := req.Formats
		if len(formats) == 0 {
			formats = []string{FormatMarkdown}
		}
		body.ScrapeOptions = &scrapeOptions{Formats: formats}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if checkErr := httpclient.CheckResponse(resp); checkErr != nil {
		return nil, fmt.Errorf("search %q: %w", req.Query, checkErr)
	}

	var decoded searchResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
		return nil, fmt.Errorf("decode search response: %w", decodeErr)
	}
	if !decoded.Success && decoded.Error != "" {
		return nil, fmt.Errorf("search %q: %s", req.Query, decoded.Error)
	}

	docs := make([]Document, 0, len(decoded.Data))
	for _, d := range decoded.Data {
		if d.URL == "" {
			d.URL = d.MetadataString("sourceURL", "url")
		}
		if d.URL == "" {
			continue
		}
		if d.Title == "" {
			d.Title = d.MetadataString("title", "ogTitle")
		}
		docs = append(docs, d)
	}
	return docs, nil
}
