package reason

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rcliao/context-engine/internal/model"
)

func makeHit(id, text string, fused float64) model.RetrievalHit {
	return model.RetrievalHit{
		RecordID:   id,
		FusedScore: fused,
		Record: &model.Record{
			ID:        id,
			Text:      text,
			Source:    "check-in",
			CreatedAt: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestReason_ZeroEvidenceStillConcludes(t *testing.T) {
	r := New(nil, DefaultConfig(), nil)

	trace, err := r.Reason(context.Background(), "what happened on Friday?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if trace.State != model.ReasoningConcluded {
		t.Fatalf("expected concluded, got %s", trace.State)
	}
	if len(trace.Steps) != 1 {
		t.Fatalf("expected a one-step trace, got %d steps", len(trace.Steps))
	}
	if !strings.Contains(trace.Conclusion().Claim, "insufficient evidence") {
		t.Errorf("conclusion must state insufficient evidence: %q", trace.Conclusion().Claim)
	}
}

func TestReason_CitationsSubsetOfEvidence(t *testing.T) {
	r := New(nil, DefaultConfig(), nil)
	evidence := []model.RetrievalHit{
		makeHit("rec-a", "team meeting rescheduled to Friday", 0.9),
		makeHit("rec-b", "felt behind on Friday's deliverable", 0.8),
	}

	trace, err := r.Reason(context.Background(), "what is happening on Friday?", evidence)
	if err != nil {
		t.Fatal(err)
	}
	allowed := map[string]bool{"rec-a": true, "rec-b": true}
	for _, step := range trace.Steps {
		for _, id := range step.SupportingRecordIDs {
			if !allowed[id] {
				t.Errorf("step cites %s which is not in the evidence set", id)
			}
		}
	}
}

// rogueStrategy cites a record id outside the evidence set.
type rogueStrategy struct{}

func (rogueStrategy) Step(string, model.RetrievalHit, []model.ReasoningStep) (*model.ReasoningStep, error) {
	return &model.ReasoningStep{
		Claim:               "fabricated",
		SupportingRecordIDs: []string{"not-in-evidence"},
		Confidence:          0.9,
	}, nil
}

func TestReason_UnsupportedClaim(t *testing.T) {
	r := New(rogueStrategy{}, DefaultConfig(), nil)
	trace, err := r.Reason(context.Background(), "anything", []model.RetrievalHit{
		makeHit("rec-a", "some text", 0.5),
	})
	if !errors.Is(err, model.ErrUnsupportedClaim) {
		t.Fatalf("expected ErrUnsupportedClaim, got %v", err)
	}
	if trace.State != model.ReasoningFailed {
		t.Errorf("expected failed state, got %s", trace.State)
	}
}

// verboseStrategy emits one low-confidence step per evidence hit.
type verboseStrategy struct{}

func (verboseStrategy) Step(_ string, hit model.RetrievalHit, _ []model.ReasoningStep) (*model.ReasoningStep, error) {
	return &model.ReasoningStep{
		Claim:               "observed " + hit.RecordID,
		SupportingRecordIDs: []string{hit.RecordID},
		Confidence:          0.1,
	}, nil
}

func TestReason_BudgetExceeded(t *testing.T) {
	r := New(verboseStrategy{}, Config{ConfidenceThreshold: 0.99, MaxSteps: 2}, nil)
	evidence := []model.RetrievalHit{
		makeHit("rec-a", "one", 0.5),
		makeHit("rec-b", "two", 0.5),
		makeHit("rec-c", "three", 0.5),
	}

	trace, err := r.Reason(context.Background(), "question", evidence)
	if !errors.Is(err, model.ErrReasoningBudget) {
		t.Fatalf("expected ErrReasoningBudget, got %v", err)
	}
	if trace.State != model.ReasoningFailed {
		t.Errorf("expected failed state, got %s", trace.State)
	}
}

func TestReason_ThresholdConcludes(t *testing.T) {
	r := New(nil, Config{ConfidenceThreshold: 0.7, MaxSteps: 10}, nil)
	evidence := []model.RetrievalHit{
		makeHit("rec-a", "Friday meeting moved", 1.0),
		makeHit("rec-b", "unrelated grocery list", 1.0),
	}

	trace, err := r.Reason(context.Background(), "Friday meeting", evidence)
	if err != nil {
		t.Fatal(err)
	}
	if trace.State != model.ReasoningConcluded {
		t.Fatalf("expected concluded, got %s", trace.State)
	}
	if trace.ConclusionIndex != 0 {
		t.Errorf("full-overlap first hit should conclude immediately, got index %d", trace.ConclusionIndex)
	}
	if trace.Conclusion().Confidence < 0.7 {
		t.Errorf("conclusion confidence below threshold: %f", trace.Conclusion().Confidence)
	}
}

func TestReason_FallbackMarksLowestConfidence(t *testing.T) {
	// Steps at 0.4 and 0.2: nothing reaches 0.9, the 0.2 step concludes.
	strategy := &scriptedStrategy{confidences: []float64{0.4, 0.2}}
	r := New(strategy, Config{ConfidenceThreshold: 0.9, MaxSteps: 10}, nil)
	evidence := []model.RetrievalHit{
		makeHit("rec-a", "one", 0.5),
		makeHit("rec-b", "two", 0.5),
	}

	trace, err := r.Reason(context.Background(), "question", evidence)
	if err != nil {
		t.Fatal(err)
	}
	if trace.State != model.ReasoningConcluded {
		t.Fatalf("expected concluded, got %s", trace.State)
	}
	if trace.ConclusionIndex != 1 {
		t.Errorf("expected the weakest step (index 1) as conclusion, got %d", trace.ConclusionIndex)
	}
}

type scriptedStrategy struct {
	confidences []float64
	calls       int
}

func (s *scriptedStrategy) Step(_ string, hit model.RetrievalHit, _ []model.ReasoningStep) (*model.ReasoningStep, error) {
	c := s.confidences[s.calls%len(s.confidences)]
	s.calls++
	return &model.ReasoningStep{
		Claim:               "observed " + hit.RecordID,
		SupportingRecordIDs: []string{hit.RecordID},
		Confidence:          c,
	}, nil
}

func TestReason_IndexesStrictlyIncreasing(t *testing.T) {
	r := New(verboseStrategy{}, Config{ConfidenceThreshold: 0.99, MaxSteps: 10}, nil)
	evidence := []model.RetrievalHit{
		makeHit("rec-a", "one", 0.5),
		makeHit("rec-b", "two", 0.5),
		makeHit("rec-c", "three", 0.5),
	}

	trace, err := r.Reason(context.Background(), "question", evidence)
	if err != nil {
		t.Fatal(err)
	}
	for i, step := range trace.Steps {
		if step.Index != i {
			t.Errorf("step %d has index %d", i, step.Index)
		}
	}
}

func TestSnippet_RuneBoundary(t *testing.T) {
	text := strings.Repeat("ü", 10)
	got := snippet(text, 7)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got)
	}
	if got != "üüü..." {
		t.Errorf("snippet = %q, want %q", got, "üüü...")
	}
	if snippet("short", 10) != "short" {
		t.Error("text under the limit should pass through unchanged")
	}
}
