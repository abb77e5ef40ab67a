// Package scoring asks the model to summarize and rate a document, and reads
// the labelled answer back into a domain.Analysis.
package scoring

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

const promptTemplate = `You are a research analyst. Analyze the document below for the research query.

Research query: %s

Title: %s
URL: %s

Content:
%s

Respond using exactly these labelled sections:
Summary: a 2-3 sentence summary of the document
Key Points:
- up to %d key points, one per line
Relevance: a single number between 0 and 1 rating how relevant the document is to the research query
Topics: a comma-separated list of topics`

// BuildPrompt renders the analysis prompt. Content is cut to MaxAnalysisChars.
func BuildPrompt(queryText, title, url, content string) string {
	return fmt.Sprintf(promptTemplate,
		queryText, title, url, domain.Truncate(content, domain.MaxAnalysisChars), domain.MaxKeyPoints)
}
