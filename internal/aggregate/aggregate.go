// Package aggregate merges scored candidates into a final result list.
// It performs no I/O.
package aggregate

import (
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

// Options control one aggregation pass.
type Options struct {
	MaxResults    int
	FreshnessDays int
	// DropUndated discards candidates without a published date when a
	// freshness window is set. By default they are kept.
	DropUndated bool
	Now         time.Time
}

// Aggregate deduplicates by URL, applies the freshness window, sorts by
// relevance descending and truncates to MaxResults (zero means no cap).
//
// A later duplicate replaces the kept candidate only when its score is
// strictly higher, so ties keep the first-seen entry. The sort is stable,
// so equal scores keep candidate order. The input slice is not modified.
func Aggregate(candidates []domain.Result, opts Options) []domain.Result {
	deduped := dedupe(candidates)
	fresh := filterFresh(deduped, opts)

	slices.SortStableFunc(fresh, func(a, b domain.Result) int {
		switch {
		case a.RelevanceScore > b.RelevanceScore:
			return -1
		case a.RelevanceScore < b.RelevanceScore:
			return 1
		default:
			return 0
		}
	})

	if opts.MaxResults > 0 && len(fresh) > opts.MaxResults {
		fresh = fresh[:opts.MaxResults]
	}
	return fresh
}

func dedupe(candidates []domain.Result) []domain.Result {
	index := make(map[string]int, len(candidates))
	out := make([]domain.Result, 0, len(candidates))
	for _, c := range candidates {
		i, seen := index[c.URL]
		if !seen {
			index[c.URL] = len(out)
			out = append(out, c)
			continue
		}
		if c.RelevanceScore > out[i].RelevanceScore {
			out[i] = c
		}
	}
	return out
}

func filterFresh(results []domain.Result, opts Options) []domain.Result {
	if opts.FreshnessDays <= 0 {
		return results
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.AddDate(0, 0, -opts.FreshnessDays)

	out := results[:0]
	for _, r := range results {
		if r.PublishedDate == nil {
			if !opts.DropUndated {
				out = append(out, r)
			}
			continue
		}
		if !r.PublishedDate.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
