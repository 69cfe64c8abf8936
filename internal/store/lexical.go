package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/context-engine/internal/model"
)

// lexicalCandidateLimit bounds the rows pulled from SQLite before scoring.
const lexicalCandidateLimit = 500

// SearchLexical finds records whose text overlaps the query tokens and
// scores them by term frequency weighted by term rarity. Always available:
// it never touches the semantic index or the embedding backend.
func (s *TieredStore) SearchLexical(ctx context.Context, p LexicalParams) ([]LexicalHit, error) {
	topK := p.TopK
	if topK <= 0 {
		topK = 10
	}

	terms := tokenize(p.Query)
	if len(terms) == 0 {
		return nil, nil
	}

	where := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)+2)
	for _, t := range terms {
		where = append(where, "lower(text) LIKE ?")
		args = append(args, "%"+t+"%")
	}

	query := fmt.Sprintf(`
		SELECT id, text, source, tags, tier, supersedes, created_at, embedding, access_count, last_accessed_at
		FROM records WHERE (%s)`, strings.Join(where, " OR "))
	if p.Tier != "" {
		query += " AND tier = ?"
		args = append(args, string(p.Tier))
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ?"
	args = append(args, lexicalCandidateLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "lexical candidate query")
	}
	defer rows.Close()

	var candidates []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "scan record")
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Document frequency per query term across the candidate pool. Rare
	// terms separate results better than common ones.
	df := make(map[string]int, len(terms))
	docTokens := make([]map[string]int, len(candidates))
	for i, r := range candidates {
		counts := tokenCounts(r.Text)
		docTokens[i] = counts
		for _, t := range terms {
			if counts[t] > 0 {
				df[t]++
			}
		}
	}

	n := float64(len(candidates))
	hits := make([]LexicalHit, 0, len(candidates))
	for i, r := range candidates {
		var score float64
		total := 0
		for _, c := range docTokens[i] {
			total += c
		}
		for _, t := range terms {
			tf := docTokens[i][t]
			if tf == 0 {
				continue
			}
			weight := math.Log(1 + n/float64(df[t]))
			score += float64(tf) * weight
		}
		if score == 0 {
			continue
		}
		// Dampen the length advantage of long records.
		score /= math.Sqrt(float64(1 + total))
		hits = append(hits, LexicalHit{Record: r, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Record.CreatedAt.Equal(hits[j].Record.CreatedAt) {
			return hits[i].Record.CreatedAt.After(hits[j].Record.CreatedAt)
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
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

func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, t := range tokenize(text) {
		counts[t]++
	}
	return counts
}
