package scorer

import (
	"context"
	"strings"
	"unicode"

	"github.com/eventscout/eventscout/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Lexical scores by Unicode case-folded token overlap: the fraction of
// prompt tokens that also appear in the event's title or description.
type Lexical struct {
	folder cases.Caser
}

// NewLexical creates a lexical scorer.
func NewLexical() *Lexical {
	return &Lexical{folder: cases.Fold()}
}

// Score implements Scorer. It never fails.
func (l *Lexical) Score(_ context.Context, prompt string, event domain.Event) (Result, error) {
	promptTokens := l.tokenize(prompt)
	if len(promptTokens) == 0 {
		return Result{Score: 0, MatchType: domain.MatchTypeLexical}, nil
	}

	eventTokens := make(map[string]struct{})
	for token := range l.tokenize(event.Title) {
		eventTokens[token] = struct{}{}
	}
	for token := range l.tokenize(event.Description) {
		eventTokens[token] = struct{}{}
	}

	var overlap int
	for token := range promptTokens {
		if _, ok := eventTokens[token]; ok {
			overlap++
		}
	}

	return Result{
		Score:     float64(overlap) / float64(len(promptTokens)),
		MatchType: domain.MatchTypeLexical,
	}, nil
}

// tokenize splits text on non-letter/digit runes and returns the set of
// NFKC-normalized, case-folded tokens.
func (l *Lexical) tokenize(text string) map[string]struct{} {
	normalized := l.folder.String(norm.NFKC.String(text))
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}
