// Package extract turns raw search hits into the title, body text and publish
// date the scorer and aggregator work with.
package extract

import (
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/research/internal/search"
)

// Page is a normalized search hit.
type Page struct {
	Title         string
	URL           string
	Content       string
	PublishedDate *time.Time
}

var metadataDateKeys = []string{
	"publishedTime",
	"article:published_time",
	"published_time",
	"datePublished",
	"dcterms.created",
	"date",
}

var htmlDateSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[name="pubdate"]`, "content"},
	{`time[datetime]`, "datetime"},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// FromDocument normalizes doc. HTML, when the hit carries it, fills in any
// title, body or date the structured fields lack.
func FromDocument(doc search.Document) Page {
	page := Page{
		Title:   strings.TrimSpace(doc.Title),
		URL:     strings.TrimSpace(doc.URL),
		Content: strings.TrimSpace(doc.Content()),
	}
	page.PublishedDate = ParseDate(doc.MetadataString(metadataDateKeys...))

	if doc.HTML == "" {
		return page
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return page
	}

	if page.Title == "" {
		page.Title = htmlTitle(parsed)
	}
	if page.PublishedDate == nil {
		page.PublishedDate = htmlPublishedDate(parsed)
	}
	if page.Content == "" {
		page.Content = HTMLToMarkdown(doc.HTML)
	}
	return page
}

// HTMLToMarkdown converts an HTML fragment, returning "" when conversion fails.
func HTMLToMarkdown(html string) string {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// ParseDate accepts the common machine and human date forms. Unknown input yields nil.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func htmlTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func htmlPublishedDate(doc *goquery.Document) *time.Time {
	for _, s := range htmlDateSelectors {
		if v, ok := doc.Find(s.selector).First().Attr(s.attr); ok {
			if t := ParseDate(v); t != nil {
				return t
			}
		}
	}
	return nil
}
