package store

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/rcliao/context-engine/internal/model"
)

// SearchSemantic queries the chromem collections by cosine similarity.
// Records still waiting on the background embedder are not in any
// collection, so they are simply invisible here until SetEmbedding runs.
func (s *TieredStore) SearchSemantic(ctx context.Context, p SemanticParams) ([]SemanticHit, error) {
	topK := p.TopK
	if topK <= 0 {
		topK = 10
	}
	if len(p.Embedding) == 0 {
		return nil, goerr.New("query embedding is empty")
	}

	tiers := []model.Tier{model.TierRecent, model.TierArchival}
	if p.Tier != "" {
		tiers = []model.Tier{p.Tier}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SemanticHit
	for _, tier := range tiers {
		col := s.cols[tier]

		// chromem rejects nResults beyond the collection size.
		n := topK
		if c := col.Count(); c < n {
			n = c
		}
		if n == 0 {
			continue
		}

		results, err := col.QueryEmbedding(ctx, p.Embedding, n, nil, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "semantic query", goerr.V("tier", tier))
		}

		for _, res := range results {
			r, err := s.getRecord(ctx, res.ID)
			if err != nil {
				// Index entry without a row means the index is stale;
				// SQLite is authoritative, so skip it.
				s.logger.Warn("semantic index out of sync", zap.String("id", res.ID), zap.Error(err))
				continue
			}
			hits = append(hits, SemanticHit{Record: r, Similarity: float64(res.Similarity)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
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
