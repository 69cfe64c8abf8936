package rerank

import (
	"context"
	"errors"
	"testing"
)

func TestLexicalReranker_Order(t *testing.T) {
	r := NewLexicalReranker()
	ctx := context.Background()

	scores, err := r.Rerank(ctx, "Friday deliverable", []Candidate{
		{ID: "a", Text: "felt behind on Friday's deliverable"},
		{ID: "b", Text: "team meeting rescheduled to Friday"},
		{ID: "c", Text: "grocery list milk eggs bread"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(scores))
	}
	if scores[0] <= scores[1] {
		t.Errorf("full coverage should outscore partial: %v", scores)
	}
	if scores[2] != 0 {
		t.Errorf("unrelated candidate should score 0, got %f", scores[2])
	}
}

func TestLexicalReranker_EmptyQuery(t *testing.T) {
	r := NewLexicalReranker()
	scores, err := r.Rerank(context.Background(), "", []Candidate{{ID: "a", Text: "anything"}})
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] != 0 {
		t.Errorf("empty query should score 0, got %f", scores[0])
	}
}

func TestLexicalReranker_Deterministic(t *testing.T) {
	r := NewLexicalReranker()
	cands := []Candidate{
		{ID: "a", Text: "status update on the launch checklist"},
		{ID: "b", Text: "launch went well overall"},
	}
	first, _ := r.Rerank(context.Background(), "launch checklist", cands)
	second, _ := r.Rerank(context.Background(), "launch checklist", cands)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("scores differ between runs: %v vs %v", first, second)
		}
	}
}

func TestFailingReranker(t *testing.T) {
	wantErr := errors.New("backend down")
	r := &FailingReranker{Err: wantErr}
	_, err := r.Rerank(context.Background(), "q", []Candidate{{ID: "a", Text: "x"}})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected injected error, got %v", err)
	}
}
