// Package fetcher selects the sources a query may use and runs one
// site-restricted search per source.
package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/extract"
	"github.com/jonesrussell/north-cloud/research/internal/search"
)

// Searcher is the subset of the search client the fetcher needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Document, error)
}

// EligibleSources filters sources for q, preserving input order. A source
// must be active, meet q.MinReliabilityScore, share a category when q has
// categories, and pass include/exclude. IncludeSources wins when both are set.
// Include and exclude entries match a source id or its domain.
func EligibleSources(q domain.Query, sources []domain.Source) []domain.Source {
	include := toSet(q.IncludeSources)
	exclude := toSet(q.ExcludeSources)

	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if !s.Active || s.ReliabilityScore < q.MinReliabilityScore {
			continue
		}
		if len(q.Categories) > 0 && !s.HasAnyCategory(q.Categories) {
			continue
		}
		switch {
		case len(include) > 0:
			if !matches(include, s) {
				continue
			}
		case len(exclude) > 0:
			if matches(exclude, s) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// PerSourceLimit spreads maxResults over n sources, rounding up.
func PerSourceLimit(maxResults, n int) int {
	if n <= 0 || maxResults <= 0 {
		return 0
	}
	return (maxResults + n - 1) / n
}

// SiteQuery scopes queryText to a single domain.
func SiteQuery(queryText, siteDomain string) string {
	return strings.TrimSpace(queryText) + " site:" + siteDomain
}

// Fetcher runs site-scoped searches.
type Fetcher struct {
	searcher Searcher
	formats  []string
}

// New returns a Fetcher requesting markdown, plus html when includeHTML is set.
func New(searcher Searcher, includeHTML bool) *Fetcher {
	formats := []string{search.FormatMarkdown}
	if includeHTML {
		formats = append(formats, search.FormatHTML)
	}
	return &Fetcher{searcher: searcher, formats: formats}
}

// Fetch searches one source and normalizes the hits. Hits outside the
// source's domain are dropped.
func (f *Fetcher) Fetch(ctx context.Context, queryText string, src domain.Source, limit int) ([]extract.Page, error) {
	docs, err := f.searcher.Search(ctx, search.Request{
		Query:   SiteQuery(queryText, src.Domain),
		Limit:   limit,
		Scrape:  true,
		Formats: f.formats,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", src.Domain, err)
	}

	pages := make([]extract.Page, 0, len(docs))
	for _, d := range docs {
		if !onDomain(d.URL, src.Domain) {
			continue
		}
		pages = append(pages, extract.FromDocument(d))
	}
	return pages, nil
}

func onDomain(rawURL, siteDomain string) bool {
	host := domain.DomainFromURL(rawURL)
	return host == siteDomain || strings.HasSuffix(host, "."+siteDomain)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func matches(set map[string]struct{}, s domain.Source) bool {
	if _, ok := set[strings.ToLower(s.ID)]; ok {
		return true
	}
	_, ok := set[strings.ToLower(s.Domain)]
	return ok
}
