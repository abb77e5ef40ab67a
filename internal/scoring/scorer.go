package scoring

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
	"github.com/jonesrussell/north-cloud/research/internal/extract"
	infralogger "github.com/jonesrussell/north-cloud/research/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/research/internal/llm"
)

// Scorer makes one model call per page.
type Scorer struct {
	generator llm.Generator
	logger    infralogger.Logger
}

func NewScorer(generator llm.Generator, log infralogger.Logger) *Scorer {
	return &Scorer{generator: generator, logger: log}
}

// Score analyzes page for queryText and returns a Result ready for aggregation.
// The stored content is cut to MaxStoredChars. Only the model call can fail.
func (s *Scorer) Score(ctx context.Context, queryText string, page extract.Page) (domain.Result, error) {
	prompt := BuildPrompt(queryText, page.Title, page.URL, page.Content)

	resp, err := s.generator.GenerateResponse(ctx, prompt)
	if err != nil {
		return domain.Result{}, fmt.Errorf("score %s: %w", page.URL, err)
	}

	analysis := ParseAnalysis(resp.Content)
	s.logger.Debug("Document scored",
		infralogger.String("url", page.URL),
		infralogger.Float64("relevance", analysis.Relevance),
		infralogger.Int("key_points", len(analysis.KeyPoints)),
	)

	return domain.Result{
		Title:          page.Title,
		URL:            page.URL,
		Content:        domain.Truncate(page.Content, domain.MaxStoredChars),
		Summary:        analysis.Summary,
		KeyPoints:      analysis.KeyPoints,
		RelevanceScore: analysis.Relevance,
		Topics:         analysis.Topics,
		PublishedDate:  page.PublishedDate,
	}, nil
}
