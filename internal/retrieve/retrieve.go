// Package retrieve fuses lexical and semantic search into one ranked
// candidate list, then reranks the head of the list with a pluggable
// pairwise scorer.
package retrieve

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rcliao/context-engine/internal/embedding"
	"github.com/rcliao/context-engine/internal/model"
	"github.com/rcliao/context-engine/internal/rerank"
	"github.com/rcliao/context-engine/internal/store"
)

// Config holds retrieval tuning parameters. The fusion weights have no
// derived optimum; they are deliberately tunable.
type Config struct {
	TopK       int     // default result count
	CandidateK int     // over-fetch per stage so fusion can reorder
	RerankK    int     // how much of the fused head gets reranked
	LexWeight  float64 // weight of the normalized lexical score
	SemWeight  float64 // weight of the normalized semantic score
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopK:       10,
		CandidateK: 50,
		RerankK:    20,
		LexWeight:  0.5,
		SemWeight:  0.5,
	}
}

// Result is one retrieval pass. LexicalOnly reports that the semantic stage
// was skipped (no embedder, or the backend errored); RerankApplied reports
// whether rerank scores are present on the head of Hits.
type Result struct {
	Hits          []model.RetrievalHit `json:"hits"`
	LexicalOnly   bool                 `json:"lexical_only"`
	RerankApplied bool                 `json:"rerank_applied"`
}

// Retriever runs hybrid retrieval against the tiered store.
type Retriever struct {
	store    store.Store
	embedder embedding.Embedder // nil means lexical-only operation
	reranker rerank.Reranker    // nil means fused order is final
	cfg      Config
	logger   *zap.Logger
}

// New wires a retriever. Both embedder and reranker may be nil; each absence
// degrades one stage rather than disabling retrieval.
func New(st store.Store, emb embedding.Embedder, rr rerank.Reranker, cfg Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.CandidateK < cfg.TopK {
		cfg.CandidateK = cfg.TopK
	}
	if cfg.RerankK <= 0 {
		cfg.RerankK = DefaultConfig().RerankK
	}
	return &Retriever{store: st, embedder: emb, reranker: rr, cfg: cfg, logger: logger}
}

// Retrieve returns up to topK hits for the query, ordered by rerank score
// where present, then fused score, then recency. An empty store yields an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (*Result, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	candidateK := r.cfg.CandidateK
	if candidateK < topK {
		candidateK = topK
	}

	res := &Result{}

	lexHits, err := r.store.SearchLexical(ctx, store.LexicalParams{Query: query, TopK: candidateK})
	if err != nil {
		return nil, err
	}

	var semHits []store.SemanticHit
	if r.embedder == nil {
		res.LexicalOnly = true
	} else {
		vec, err := r.embedder.Embed(ctx, embedding.QueryPrefix+query)
		if err != nil {
			// Embedding backend down: degrade to lexical-only instead of
			// failing the call.
			r.logger.Warn("embedding unavailable, lexical-only retrieval", zap.Error(err))
			res.LexicalOnly = true
		} else {
			semHits, err = r.store.SearchSemantic(ctx, store.SemanticParams{Embedding: vec, TopK: candidateK})
			if err != nil {
				r.logger.Warn("semantic search failed, lexical-only retrieval", zap.Error(err))
				res.LexicalOnly = true
				semHits = nil
			}
		}
	}

	hits := fuse(lexHits, semHits, r.cfg.LexWeight, r.cfg.SemWeight)
	if len(hits) == 0 {
		return res, nil
	}

	res.RerankApplied = r.rerankHead(ctx, query, hits)

	if len(hits) > topK {
		hits = hits[:topK]
	}
	res.Hits = hits
	return res, nil
}

// fuse min-max normalizes each score list independently and combines them.
// Absence from one list means score 0 for that term, not exclusion.
func fuse(lex []store.LexicalHit, sem []store.SemanticHit, wLex, wSem float64) []model.RetrievalHit {
	lexScores := make([]float64, len(lex))
	for i, h := range lex {
		lexScores[i] = h.Score
	}
	semScores := make([]float64, len(sem))
	for i, h := range sem {
		semScores[i] = h.Similarity
	}
	lexNorm := minMaxNormalize(lexScores)
	semNorm := minMaxNormalize(semScores)

	byID := make(map[string]*model.RetrievalHit, len(lex)+len(sem))
	order := make([]string, 0, len(lex)+len(sem))

	for i, h := range lex {
		hit := &model.RetrievalHit{
			RecordID:     h.Record.ID,
			Record:       h.Record,
			LexicalScore: lexNorm[i],
		}
		byID[h.Record.ID] = hit
		order = append(order, h.Record.ID)
	}
	for i, h := range sem {
		if hit, ok := byID[h.Record.ID]; ok {
			hit.SemanticScore = semNorm[i]
			continue
		}
		hit := &model.RetrievalHit{
			RecordID:      h.Record.ID,
			Record:        h.Record,
			SemanticScore: semNorm[i],
		}
		byID[h.Record.ID] = hit
		order = append(order, h.Record.ID)
	}

	hits := make([]model.RetrievalHit, 0, len(order))
	for _, id := range order {
		hit := byID[id]
		hit.FusedScore = wLex*hit.LexicalScore + wSem*hit.SemanticScore
		hits = append(hits, *hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return lessByFused(&hits[i], &hits[j]) })
	return hits
}

// rerankHead applies the pairwise scorer to the fused head. Best effort: on
// error the fused ordering stands.
func (r *Retriever) rerankHead(ctx context.Context, query string, hits []model.RetrievalHit) bool {
	if r.reranker == nil {
		return false
	}

	k := r.cfg.RerankK
	if k > len(hits) {
		k = len(hits)
	}

	candidates := make([]rerank.Candidate, k)
	for i := 0; i < k; i++ {
		candidates[i] = rerank.Candidate{ID: hits[i].RecordID, Text: hits[i].Record.Text}
	}

	scores, err := r.reranker.Rerank(ctx, query, candidates)
	if err != nil || len(scores) != k {
		r.logger.Warn("rerank failed, keeping fused order", zap.Error(err))
		return false
	}

	for i := 0; i < k; i++ {
		s := scores[i]
		hits[i].RerankScore = &s
	}

	head := hits[:k]
	sort.SliceStable(head, func(i, j int) bool {
		if *head[i].RerankScore != *head[j].RerankScore {
			return *head[i].RerankScore > *head[j].RerankScore
		}
		return lessByFused(&head[i], &head[j])
	})
	return true
}

func lessByFused(a, b *model.RetrievalHit) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
		return a.Record.CreatedAt.After(b.Record.CreatedAt)
	}
	return a.RecordID < b.RecordID
}

// minMaxNormalize maps scores to [0,1]. A constant list maps to all ones so
// presence still counts in fusion.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	norm := make([]float64, len(scores))
	if max == min {
		for i := range norm {
			norm[i] = 1
		}
		return norm
	}
	for i, s := range scores {
		norm[i] = (s - min) / (max - min)
	}
	return norm
}
