package store

import (
	"context"
	"testing"
	"time"

	"github.com/rcliao/context-engine/internal/model"
)

func TestSearchLexical_Basic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC().Add(-48 * time.Hour)
	a, _ := s.Store(ctx, StoreParams{Text: "team meeting rescheduled to Friday", Source: "check-in", CreatedAt: base})
	b, _ := s.Store(ctx, StoreParams{Text: "felt behind on Friday's deliverable", Source: "check-in", CreatedAt: base.Add(24 * time.Hour)})
	s.Store(ctx, StoreParams{Text: "grocery list milk eggs bread", Source: "check-in", CreatedAt: base.Add(30 * time.Hour)})

	hits, err := s.SearchLexical(ctx, LexicalParams{Query: "Friday", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	got := map[string]bool{hits[0].Record.ID: true, hits[1].Record.ID: true}
	if !got[a.ID] || !got[b.ID] {
		t.Errorf("expected both Friday records, got %v", got)
	}
}

func TestSearchLexical_Deterministic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC().Add(-24 * time.Hour)
	for i, text := range []string{
		"sprint review went long today",
		"sprint planning moved again",
		"long walk after the sprint retro",
	} {
		if _, err := s.Store(ctx, StoreParams{Text: text, Source: "note", CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	first, err := s.SearchLexical(ctx, LexicalParams{Query: "sprint", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SearchLexical(ctx, LexicalParams{Query: "sprint", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("result count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Record.ID != second[i].Record.ID {
			t.Fatalf("ordering differs at %d", i)
		}
	}
}

func TestSearchLexical_TierFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, _ := s.Store(ctx, StoreParams{Text: "archived workout note", Source: "note"})
	embed(t, s, r)
	s.Promote(ctx, r.ID)
	s.Store(ctx, StoreParams{Text: "recent workout note", Source: "note"})

	recent, err := s.SearchLexical(ctx, LexicalParams{Query: "workout", TopK: 10, Tier: model.TierRecent})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Record.Tier != model.TierRecent {
		t.Fatalf("tier filter leaked: %+v", recent)
	}

	both, _ := s.SearchLexical(ctx, LexicalParams{Query: "workout", TopK: 10})
	if len(both) != 2 {
		t.Fatalf("expected 2 across tiers, got %d", len(both))
	}
}

func TestSearchLexical_EmptyQueryAndNoMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Store(ctx, StoreParams{Text: "something entirely different", Source: "note"})

	hits, err := s.SearchLexical(ctx, LexicalParams{Query: "   ", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("blank query should match nothing, got %d", len(hits))
	}

	hits, err = s.SearchLexical(ctx, LexicalParams{Query: "zebra", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchLexical_RareTermOutranksCommon(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC().Add(-10 * time.Hour)
	// "review" appears everywhere, "quarterly" once.
	s.Store(ctx, StoreParams{Text: "code review queue is empty", Source: "note", CreatedAt: base})
	s.Store(ctx, StoreParams{Text: "design review tomorrow", Source: "note", CreatedAt: base.Add(time.Hour)})
	target, _ := s.Store(ctx, StoreParams{Text: "quarterly review prep with notes", Source: "note", CreatedAt: base.Add(2 * time.Hour)})

	hits, err := s.SearchLexical(ctx, LexicalParams{Query: "quarterly review", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Record.ID != target.ID {
		t.Errorf("record matching the rare term should rank first")
	}
}
