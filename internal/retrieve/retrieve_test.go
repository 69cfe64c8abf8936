package retrieve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/context-engine/internal/embedding"
	"github.com/rcliao/context-engine/internal/model"
	"github.com/rcliao/context-engine/internal/rerank"
	"github.com/rcliao/context-engine/internal/store"
)

func newTestStore(t *testing.T) *store.TieredStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewTieredStore(filepath.Join(dir, "test.db"), "", nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedWeek ingests the check-in scenario: two Friday records and one
// unrelated record, all embedded.
func seedWeek(t *testing.T, s *store.TieredStore, emb embedding.Embedder) (a, b, c *model.Record) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-72 * time.Hour)

	var err error
	a, err = s.Store(ctx, store.StoreParams{
		Text: "team meeting rescheduled to Friday", Source: "check-in", CreatedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err = s.Store(ctx, store.StoreParams{
		Text: "felt behind on Friday's deliverable", Source: "check-in", CreatedAt: base.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err = s.Store(ctx, store.StoreParams{
		Text: "grocery list milk eggs bread", Source: "check-in", CreatedAt: base.Add(30 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	if emb != nil {
		for _, r := range []*model.Record{a, b, c} {
			vec, err := emb.Embed(ctx, r.Text)
			if err != nil {
				t.Fatal(err)
			}
			if err := s.SetEmbedding(ctx, r.ID, vec); err != nil {
				t.Fatal(err)
			}
		}
	}
	return a, b, c
}

func TestRetrieve_FridayScenario(t *testing.T) {
	s := newTestStore(t)
	emb := embedding.NewStaticEmbedder(64)
	a, b, c := seedWeek(t, s, emb)

	r := New(s, emb, rerank.NewLexicalReranker(), DefaultConfig(), nil)
	res, err := r.Retrieve(context.Background(), "Friday", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.LexicalOnly {
		t.Error("embedder available, should not be lexical-only")
	}
	if !res.RerankApplied {
		t.Error("expected rerank to apply")
	}

	rank := map[string]int{}
	for i, h := range res.Hits {
		rank[h.RecordID] = i + 1
	}
	if rank[a.ID] == 0 || rank[b.ID] == 0 {
		t.Fatalf("both Friday records must be returned, got ranks %v", rank)
	}
	if cRank, ok := rank[c.ID]; ok {
		if cRank < rank[a.ID] || cRank < rank[b.ID] {
			t.Errorf("unrelated record ranked above Friday records: %v", rank)
		}
	}
}

func TestRetrieve_TopKAndOrdering(t *testing.T) {
	s := newTestStore(t)
	emb := embedding.NewStaticEmbedder(64)
	seedWeek(t, s, emb)

	r := New(s, emb, rerank.NewLexicalReranker(), DefaultConfig(), nil)
	res, err := r.Retrieve(context.Background(), "Friday meeting deliverable grocery", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) > 2 {
		t.Fatalf("expected at most 2 hits, got %d", len(res.Hits))
	}

	// Non-increasing by rerank score where present, else fused.
	for i := 1; i < len(res.Hits); i++ {
		prev, cur := res.Hits[i-1], res.Hits[i]
		if prev.RerankScore != nil && cur.RerankScore != nil {
			if *prev.RerankScore < *cur.RerankScore {
				t.Errorf("rerank order violated at %d", i)
			}
		} else if prev.RerankScore == nil && cur.RerankScore == nil {
			if prev.FusedScore < cur.FusedScore {
				t.Errorf("fused order violated at %d", i)
			}
		}
	}
}

func TestRetrieve_LexicalOnlyWhenEmbedderFails(t *testing.T) {
	s := newTestStore(t)
	seedWeek(t, s, embedding.NewStaticEmbedder(64))

	broken := embedding.NewStaticEmbedder(64)
	broken.Err = errors.New("backend unreachable")

	r := New(s, broken, rerank.NewLexicalReranker(), DefaultConfig(), nil)
	res, err := r.Retrieve(context.Background(), "Friday", 10)
	if err != nil {
		t.Fatalf("embedder failure must not fail retrieval: %v", err)
	}
	if !res.LexicalOnly {
		t.Error("expected lexical-only degradation")
	}
	if len(res.Hits) == 0 {
		t.Error("lexical results should still be returned")
	}
}

func TestRetrieve_RerankFailureKeepsFusedOrder(t *testing.T) {
	s := newTestStore(t)
	emb := embedding.NewStaticEmbedder(64)
	seedWeek(t, s, emb)

	r := New(s, emb, &rerank.FailingReranker{Err: errors.New("boom")}, DefaultConfig(), nil)
	res, err := r.Retrieve(context.Background(), "Friday", 10)
	if err != nil {
		t.Fatalf("rerank failure must not propagate: %v", err)
	}
	if res.RerankApplied {
		t.Error("rerank should be reported as not applied")
	}
	for _, h := range res.Hits {
		if h.RerankScore != nil {
			t.Error("no hit should carry a rerank score after rerank failure")
		}
	}
	for i := 1; i < len(res.Hits); i++ {
		if res.Hits[i-1].FusedScore < res.Hits[i].FusedScore {
			t.Errorf("fused order violated at %d", i)
		}
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	r := New(s, embedding.NewStaticEmbedder(64), rerank.NewLexicalReranker(), DefaultConfig(), nil)

	res, err := r.Retrieve(context.Background(), "anything at all", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 0 {
		t.Fatalf("expected empty hits, got %d", len(res.Hits))
	}
}

func TestRetrieve_NoEmbedderConfigured(t *testing.T) {
	s := newTestStore(t)
	seedWeek(t, s, nil)

	r := New(s, nil, nil, DefaultConfig(), nil)
	res, err := r.Retrieve(context.Background(), "Friday", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.LexicalOnly {
		t.Error("nil embedder means lexical-only")
	}
	if res.RerankApplied {
		t.Error("nil reranker means fused order is final")
	}
	if len(res.Hits) == 0 {
		t.Error("lexical hits expected")
	}
}
