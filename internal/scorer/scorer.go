// Package scorer produces relevance scores between a subscription's
// interest prompt and a scraped event. The pipeline treats scoring as a
// capability: it records whatever a scorer returns and never retries a
// failed scoring call inline.
package scorer

import (
	"context"

	"github.com/eventscout/eventscout/internal/domain"
)

// Result is one scoring outcome: a relevance score in [0,1] and the
// method that produced it.
type Result struct {
	Score     float64
	MatchType domain.MatchType
}

// Scorer scores an event against an interest prompt.
type Scorer interface {
	Score(ctx context.Context, prompt string, event domain.Event) (Result, error)
}

// Composite prefers semantic scoring when an embedding client is
// configured and the event carries a precomputed vector, and falls back
// to lexical token overlap otherwise.
type Composite struct {
	embeddings *EmbeddingClient
	lexical    *Lexical
}

// NewComposite creates a composite scorer. embeddings may be nil, in
// which case every score is lexical.
func NewComposite(embeddings *EmbeddingClient) *Composite {
	return &Composite{
		embeddings: embeddings,
		lexical:    NewLexical(),
	}
}

// Score implements Scorer.
func (c *Composite) Score(ctx context.Context, prompt string, event domain.Event) (Result, error) {
	if c.embeddings != nil && len(event.Embedding) > 0 {
		return c.embeddings.Score(ctx, prompt, event)
	}
	return c.lexical.Score(ctx, prompt, event)
}
