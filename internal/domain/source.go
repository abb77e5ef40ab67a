package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SourceType classifies a source.
type SourceType string

const (
	SourceWebsite SourceType = "website"
	SourceBlog    SourceType = "blog"
	SourceJournal SourceType = "journal"
	SourceNews    SourceType = "news"
	SourceSocial  SourceType = "social"
	SourceOther   SourceType = "other"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceWebsite, SourceBlog, SourceJournal, SourceNews, SourceSocial, SourceOther:
		return true
	default:
		return false
	}
}

// Source is a web property whose content is gathered through site-scoped search.
// Sources are soft-disabled by clearing Active; history keeps referencing them.
type Source struct {
	ID               string         `db:"id"                json:"id"`
	Name             string         `db:"name"              json:"name"`
	URL              string         `db:"url"               json:"url"`
	Domain           string         `db:"domain"            json:"domain"`
	Type             SourceType     `db:"type"              json:"type"`
	Categories       pq.StringArray `db:"categories"        json:"categories"`
	Active           bool           `db:"active"            json:"active"`
	ReliabilityScore float64        `db:"reliability_score" json:"reliability_score"`
	LastCrawledAt    *time.Time     `db:"last_crawled_at"   json:"last_crawled_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"        json:"updated_at"`
}

// Normalize fills derived fields: the domain from the URL host, the default type,
// and trimmed, lowercased, de-duplicated categories.
func (s *Source) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	if s.Domain == "" {
		s.Domain = DomainFromURL(s.URL)
	}
	s.Domain = strings.TrimPrefix(strings.ToLower(s.Domain), "www.")
	if s.Type == "" {
		s.Type = SourceWebsite
	}
	s.Categories = NormalizeCategories(s.Categories)
}

// Validate checks a normalized source.
func (s *Source) Validate() error {
	if s.Name == "" {
		return invalidf("name is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidf("url must be an absolute http(s) URL")
	}
	if s.Domain == "" {
		return invalidf("domain is required")
	}
	if !s.Type.Valid() {
		return invalidf("unknown source type %q", s.Type)
	}
	if s.ReliabilityScore < 0 || s.ReliabilityScore > 1 {
		return invalidf("reliability_score must be between 0 and 1")
	}
	return nil
}

// HasAnyCategory reports whether the source shares at least one category with want.
func (s *Source) HasAnyCategory(want []string) bool {
	for _, c := range s.Categories {
		for _, w := range want {
			if strings.EqualFold(c, w) {
				return true
			}
		}
	}
	return false
}

// DomainFromURL returns the lowercased host of raw without a leading "www.".
// Unparsable input yields "".
func DomainFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// NormalizeCategories trims, lowercases and de-duplicates, keeping first-seen order.
func NormalizeCategories(in []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
