// Package lexical provides a reranker that scores passages by query term
// overlap using BM25 over the candidate set.
package lexical

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// Reranker scores documents with BM25. Document frequencies are taken
// from the candidate set itself, so no corpus statistics are needed.
type Reranker struct{}

// New creates a lexical reranker.
func New() *Reranker {
	return &Reranker{}
}

// Name identifies the reranker in logs.
func (r *Reranker) Name() string {
	return "lexical"
}

// Rerank returns one BM25 score per document, in input order.
// Documents sharing no term with the query score 0.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(documents))
	terms := uniqueTerms(query)
	if len(terms) == 0 || len(documents) == 0 {
		return scores, nil
	}

	freqs := make([]map[string]int, len(documents))
	lengths := make([]int, len(documents))
	df := make(map[string]int, len(terms))
	total := 0
	for i, doc := range documents {
		tokens := tokenize(doc)
		lengths[i] = len(tokens)
		total += len(tokens)
		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}
		freqs[i] = tf
		for _, term := range terms {
			if tf[term] > 0 {
				df[term]++
			}
		}
	}

	n := float64(len(documents))
	avgLen := float64(total) / n
	if avgLen == 0 {
		return scores, nil
	}

	for i := range documents {
		var score float64
		for _, term := range terms {
			tf := float64(freqs[i][term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			norm := k1 * (1 - b + b*float64(lengths[i])/avgLen)
			score += idf * tf * (k1 + 1) / (tf + norm)
		}
		scores[i] = score
	}
	return scores, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range tokenize(query) {
		if !seen[tok] {
			seen[tok] = true
			terms = append(terms, tok)
		}
	}
	return terms
}
