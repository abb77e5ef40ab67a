package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionKeyPoints
	sectionRelevance
	sectionTopics
)

var (
	// Matches "Summary:", "**Key Points:**", "## Relevance Score:" and similar headers.
	headerPattern = regexp.MustCompile(
		`(?i)^[#>*\s]*(summary|key\s*points|relevance(?:\s*score)?|topics)\s*(?:\*\*)?\s*:\s*(?:\*\*)?\s*(.*)$`)
	// Matches a header line with no colon, such as "## Key Points".
	bareHeaderPattern = regexp.MustCompile(`(?i)^[#>*\s]*(summary|key\s*points|relevance(?:\s*score)?|topics)[*\s]*$`)
	bulletPattern     = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+`)
	// Matches "0.7", ".7", "70%" and "8/10".
	relevancePattern = regexp.MustCompile(`(-?(?:\d+(?:\.\d+)?|\.\d+))\s*(?:(%)|/\s*(\d+(?:\.\d+)?))?`)
)

// ParseAnalysis reads a labelled model response. It never fails: a missing
// summary or topic list is empty, and a missing or unreadable relevance is
// DefaultRelevance. Relevance is clamped to [0,1] and key points to MaxKeyPoints.
func ParseAnalysis(text string) domain.Analysis {
	var (
		current      = sectionNone
		summary      []string
		keyPoints    []string
		relevanceRaw []string
		topicsRaw    []string
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			current = sectionFor(m[1])
			line = strings.TrimSpace(m[2])
		} else if m := bareHeaderPattern.FindStringSubmatch(line); m != nil {
			current = sectionFor(m[1])
			line = ""
		}
		if line == "" {
			continue
		}

		switch current {
		case sectionSummary:
			summary = append(summary, line)
		case sectionKeyPoints:
			if point := stripBullet(line); point != "" {
				keyPoints = append(keyPoints, point)
			}
		case sectionRelevance:
			relevanceRaw = append(relevanceRaw, line)
		case sectionTopics:
			topicsRaw = append(topicsRaw, stripBullet(line))
		case sectionNone:
		}
	}

	if len(keyPoints) > domain.MaxKeyPoints {
		keyPoints = keyPoints[:domain.MaxKeyPoints]
	}

	return domain.Analysis{
		Summary:   strings.Join(summary, " "),
		KeyPoints: nonNil(keyPoints),
		Relevance: parseRelevance(strings.Join(relevanceRaw, " ")),
		Topics:    parseTopics(topicsRaw),
	}
}

func sectionFor(label string) section {
	label = strings.ToLower(label)
	switch {
	case strings.HasPrefix(label, "summary"):
		return sectionSummary
	case strings.HasPrefix(label, "key"):
		return sectionKeyPoints
	case strings.HasPrefix(label, "relevance"):
		return sectionRelevance
	default:
		return sectionTopics
	}
}

func stripBullet(line string) string {
	line = bulletPattern.ReplaceAllString(strings.TrimSpace(line), "")
	return strings.TrimSpace(strings.Trim(line, "*"))
}

func parseRelevance(raw string) float64 {
	m := relevancePattern.FindStringSubmatch(raw)
	if m == nil {
		return domain.DefaultRelevance
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.DefaultRelevance
	}
	switch {
	case m[2] == "%":
		v /= 100
	case m[3] != "":
		if denom, denomErr := strconv.ParseFloat(m[3], 64); denomErr == nil && denom > 0 {
			v /= denom
		}
	}
	return domain.ClampScore(v)
}

func parseTopics(lines []string) []string {
	topics := make([]string, 0)
	seen := make(map[string]struct{})
	for _, line := range lines {
		for _, t := range strings.Split(line, ",") {
			t = strings.TrimSpace(strings.Trim(strings.TrimSpace(t), "."))
			key := strings.ToLower(t)
			if t == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			topics = append(topics, t)
		}
	}
	return topics
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
