// Package rerank provides second-pass scoring of a retrieval shortlist.
// Rerankers score (query, record text) pairs directly and are pluggable;
// a failure never aborts retrieval, the fused ordering is kept instead.
package rerank

import (
	"context"
	"strings"
)

// Candidate is one (id, text) pair to score against the query.
type Candidate struct {
	ID   string
	Text string
}

// Reranker scores candidates pairwise against the query. The returned slice
// is parallel to candidates; higher is better.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
}

// LexicalReranker is the deterministic default: it scores each candidate by
// query-term coverage density. Cheap, no network, stable across runs.
type LexicalReranker struct{}

// NewLexicalReranker creates the default reranker.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (r *LexicalReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	terms := splitTerms(query)
	scores := make([]float64, len(candidates))
	if len(terms) == 0 {
		return scores, nil
	}

	for i, c := range candidates {
		tokens := splitTerms(c.Text)
		if len(tokens) == 0 {
			continue
		}
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			seen[tok] = true
		}

		covered := 0
		for _, term := range terms {
			if seen[term] {
				covered++
			}
		}

		// Coverage of the query, lightly weighted by how much of the
		// candidate is on-topic.
		coverage := float64(covered) / float64(len(terms))
		density := float64(covered) / float64(len(tokens))
		scores[i] = 0.8*coverage + 0.2*density
	}
	return scores, nil
}

func splitTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// FailingReranker always errors. Test double for the fused-order fallback.
type FailingReranker struct {
	Err error
}

func (r *FailingReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	return nil, r.Err
}
