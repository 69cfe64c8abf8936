package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/context-engine/internal/embedding"
	"github.com/rcliao/context-engine/internal/model"
)

func newTestStore(t *testing.T) *TieredStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewTieredStore(filepath.Join(dir, "test.db"), "", nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func embed(t *testing.T, s *TieredStore, r *model.Record) {
	t.Helper()
	e := embedding.NewStaticEmbedder(64)
	vec, err := e.Embed(context.Background(), r.Text)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(context.Background(), r.ID, vec); err != nil {
		t.Fatal(err)
	}
}

func TestStoreAndGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)
	r, err := s.Store(ctx, StoreParams{
		Text:      "team meeting rescheduled to Friday",
		Source:    "check-in",
		Tags:      []string{"work", "schedule"},
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if r.Tier != model.TierRecent {
		t.Errorf("new records enter the recent tier, got %s", r.Tier)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != r.Text || got.Source != r.Source {
		t.Errorf("immutable fields changed: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at mismatch: want %v got %v", created, got.CreatedAt)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" {
		t.Errorf("tags mismatch: %v", got.Tags)
	}

	// Access tracking: second get observes the first one's bump.
	got2, _ := s.Get(ctx, r.ID)
	if got2.AccessCount != 1 {
		t.Errorf("expected access_count 1 after second get, got %d", got2.AccessCount)
	}
}

func TestStore_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)
	p := StoreParams{Text: "same entry", Source: "check-in", CreatedAt: created}

	if _, err := s.Store(ctx, p); err != nil {
		t.Fatal(err)
	}
	_, err := s.Store(ctx, p)
	if !errors.Is(err, model.ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}

	// Exactly one copy exists.
	records, err := s.List(ctx, ListParams{Source: "check-in"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestStore_SameTextDifferentTimeAllowed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC()
	if _, err := s.Store(ctx, StoreParams{Text: "slept badly", Source: "check-in", CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store(ctx, StoreParams{Text: "slept badly", Source: "check-in", CreatedAt: base.Add(24 * time.Hour)}); err != nil {
		t.Fatalf("same text at a new time is a new record: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "01J0000000000000000000000")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPromote_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.Store(ctx, StoreParams{Text: "promote me", Source: "note"})
	if err != nil {
		t.Fatal(err)
	}
	embed(t, s, r)

	if err := s.Promote(ctx, r.ID); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := s.Promote(ctx, r.ID); err != nil {
		t.Fatalf("second promote must be a no-op: %v", err)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != model.TierArchival {
		t.Errorf("expected archival tier, got %s", got.Tier)
	}

	// Single copy across tiers after double promotion.
	all, _ := s.List(ctx, ListParams{})
	if len(all) != 1 {
		t.Fatalf("expected exactly one copy, got %d", len(all))
	}

	// The index entry moved with it.
	e := embedding.NewStaticEmbedder(64)
	vec, _ := e.Embed(ctx, "promote me")
	hits, err := s.SearchSemantic(ctx, SemanticParams{Embedding: vec, TopK: 5, Tier: model.TierArchival})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Record.ID != r.ID {
		t.Errorf("promoted record should be served from the archival index")
	}
	recentHits, _ := s.SearchSemantic(ctx, SemanticParams{Embedding: vec, TopK: 5, Tier: model.TierRecent})
	if len(recentHits) != 0 {
		t.Errorf("promoted record must leave the recent index, got %d hits", len(recentHits))
	}
}

func TestPromotionCandidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old, _ := s.Store(ctx, StoreParams{Text: "old embedded entry", Source: "note", CreatedAt: time.Now().UTC().Add(-96 * time.Hour)})
	embed(t, s, old)

	fresh, _ := s.Store(ctx, StoreParams{Text: "fresh embedded entry", Source: "note"})
	embed(t, s, fresh)

	unembedded, _ := s.Store(ctx, StoreParams{Text: "old but not embedded", Source: "note", CreatedAt: time.Now().UTC().Add(-96 * time.Hour)})

	hot, _ := s.Store(ctx, StoreParams{Text: "fresh but hot entry", Source: "note"})
	embed(t, s, hot)
	for i := 0; i < 5; i++ {
		s.Get(ctx, hot.ID)
	}

	ids, err := s.PromotionCandidates(ctx, 72*time.Hour, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{old.ID: true, hot.ID: true}
	if len(ids) != 2 {
		t.Fatalf("expected 2 candidates, got %v", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected candidate %s", id)
		}
		if id == unembedded.ID {
			t.Error("records without embeddings are not eligible")
		}
	}
}

func TestPendingEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	older, _ := s.Store(ctx, StoreParams{Text: "first note", Source: "check-in", CreatedAt: base})
	newer, _ := s.Store(ctx, StoreParams{Text: "second note", Source: "check-in", CreatedAt: base.Add(time.Minute)})
	embedded, _ := s.Store(ctx, StoreParams{Text: "third note", Source: "check-in", CreatedAt: base.Add(2 * time.Minute)})
	embed(t, s, embedded)

	pending, err := s.PendingEmbedding(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != older.ID || pending[1].ID != newer.ID {
		t.Errorf("expected oldest-first order, got %s then %s", pending[0].ID, pending[1].ID)
	}

	embed(t, s, older)
	embed(t, s, newer)
	pending, err = s.PendingEmbedding(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d after embedding everything, want 0", len(pending))
	}
}

func TestSupersedes_Chain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	orig, _ := s.Store(ctx, StoreParams{Text: "meeting on Thursday", Source: "check-in"})
	fix, err := s.Store(ctx, StoreParams{
		Text: "correction: meeting is on Friday", Source: "check-in", Supersedes: orig.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, fix.ID)
	if got.Supersedes != orig.ID {
		t.Errorf("supersedes not persisted: %q", got.Supersedes)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Store(ctx, StoreParams{Text: "first entry", Source: "check-in"})
	s.Store(ctx, StoreParams{Text: "second entry", Source: "research-note"})
	embed(t, s, a)
	s.Promote(ctx, a.ID)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalRecords != 2 {
		t.Errorf("expected 2 records, got %d", st.TotalRecords)
	}
	if st.PendingEmbedding != 1 {
		t.Errorf("expected 1 pending embedding, got %d", st.PendingEmbedding)
	}
	if st.Tiers["archival"] != 1 || st.Tiers["recent"] != 1 {
		t.Errorf("tier counts wrong: %v", st.Tiers)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected non-zero db size")
	}
}
