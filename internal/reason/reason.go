// Package reason builds a linear chain of reasoning steps over ranked
// evidence. The step strategy is pluggable; the chain always terminates,
// either at a confident conclusion, a conservative fallback, or a budget
// failure.
package reason

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/rcliao/context-engine/internal/model"
)

// Config holds reasoning parameters.
type Config struct {
	ConfidenceThreshold float64 // a step at or above this concludes the chain
	MaxSteps            int     // hard ceiling guaranteeing termination
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.7, MaxSteps: 12}
}

// Strategy produces the next step from one piece of evidence, or nil to
// skip evidence that adds no new information. Every record id the step
// cites must come from the evidence set.
type Strategy interface {
	Step(question string, hit model.RetrievalHit, prior []model.ReasoningStep) (*model.ReasoningStep, error)
}

// Reasoner consumes evidence hits in rank order and emits a ReasoningTrace.
type Reasoner struct {
	strategy Strategy
	cfg      Config
	logger   *zap.Logger
}

// New wires a reasoner. A nil strategy falls back to the deterministic
// overlap strategy.
func New(strategy Strategy, cfg Config, logger *zap.Logger) *Reasoner {
	if strategy == nil {
		strategy = NewOverlapStrategy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	return &Reasoner{strategy: strategy, cfg: cfg, logger: logger}
}

// Reason walks the evidence in rank order. The trace always concludes when
// evidence runs out; only a budget overrun or a strategy contract violation
// fails the call.
func (r *Reasoner) Reason(ctx context.Context, question string, evidence []model.RetrievalHit) (*model.ReasoningTrace, error) {
	trace := &model.ReasoningTrace{Question: question, State: model.ReasoningStepping}

	if len(evidence) == 0 {
		return concludeInsufficient(trace), nil
	}

	allowed := make(map[string]bool, len(evidence))
	for _, h := range evidence {
		allowed[h.RecordID] = true
	}

	for _, hit := range evidence {
		if err := ctx.Err(); err != nil {
			trace.State = model.ReasoningFailed
			return trace, err
		}

		step, err := r.strategy.Step(question, hit, trace.Steps)
		if err != nil {
			trace.State = model.ReasoningFailed
			return trace, goerr.Wrap(err, "step strategy failed")
		}
		if step == nil {
			continue // no new information in this evidence
		}

		for _, id := range step.SupportingRecordIDs {
			if !allowed[id] {
				trace.State = model.ReasoningFailed
				return trace, goerr.Wrap(model.ErrUnsupportedClaim, "validate step",
					goerr.V("record_id", id), goerr.V("step", len(trace.Steps)))
			}
		}

		if len(trace.Steps) >= r.cfg.MaxSteps {
			trace.State = model.ReasoningFailed
			return trace, goerr.Wrap(model.ErrReasoningBudget, "reason",
				goerr.V("max_steps", r.cfg.MaxSteps))
		}

		step.Index = len(trace.Steps)
		trace.Steps = append(trace.Steps, *step)

		if step.Confidence >= r.cfg.ConfidenceThreshold {
			trace.ConclusionIndex = step.Index
			trace.State = model.ReasoningConcluded
			return trace, nil
		}
	}

	if len(trace.Steps) == 0 {
		// Strategy surfaced nothing relevant; still conclude.
		return concludeInsufficient(trace), nil
	}

	// Evidence exhausted below the threshold: conservative fallback marks
	// the weakest step as the conclusion rather than dropping the trace.
	lowest := 0
	for i, s := range trace.Steps {
		if s.Confidence < trace.Steps[lowest].Confidence {
			lowest = i
		}
	}
	trace.ConclusionIndex = lowest
	trace.State = model.ReasoningConcluded
	r.logger.Debug("trace concluded below threshold",
		zap.Int("steps", len(trace.Steps)), zap.Int("conclusion", lowest))
	return trace, nil
}

func concludeInsufficient(trace *model.ReasoningTrace) *model.ReasoningTrace {
	trace.Steps = []model.ReasoningStep{{
		Index:      0,
		Claim:      fmt.Sprintf("insufficient evidence to answer %q", trace.Question),
		Confidence: 0,
	}}
	trace.ConclusionIndex = 0
	trace.State = model.ReasoningConcluded
	return trace
}

// OverlapStrategy is the deterministic default: it surfaces one step per
// evidence record that introduces query terms not covered by prior steps.
type OverlapStrategy struct{}

// NewOverlapStrategy creates the default strategy.
func NewOverlapStrategy() *OverlapStrategy {
	return &OverlapStrategy{}
}

func (s *OverlapStrategy) Step(question string, hit model.RetrievalHit, prior []model.ReasoningStep) (*model.ReasoningStep, error) {
	if hit.Record == nil {
		return nil, nil
	}

	qTerms := termSet(question)
	if len(qTerms) == 0 {
		return nil, nil
	}
	rTerms := termSet(hit.Record.Text)

	covered := make(map[string]bool)
	for _, p := range prior {
		for t := range termSet(p.Claim) {
			covered[t] = true
		}
	}

	var shared, fresh []string
	for t := range qTerms {
		if !rTerms[t] {
			continue
		}
		shared = append(shared, t)
		if !covered[t] {
			fresh = append(fresh, t)
		}
	}
	if len(shared) == 0 || len(fresh) == 0 {
		return nil, nil // nothing new to surface
	}
	sort.Strings(shared)

	base := hit.FusedScore
	if hit.RerankScore != nil {
		base = *hit.RerankScore
	}
	overlap := float64(len(shared)) / float64(len(qTerms))
	confidence := clamp01(0.6*overlap + 0.4*base)

	claim := fmt.Sprintf("%s record from %s connects to the question through %s: %q",
		hit.Record.Source,
		hit.Record.CreatedAt.Format("2006-01-02"),
		strings.Join(shared, ", "),
		snippet(hit.Record.Text, 80))

	return &model.ReasoningStep{
		Claim:               claim,
		SupportingRecordIDs: []string{hit.RecordID},
		Confidence:          confidence,
	}, nil
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "was": true, "are": true,
	"with": true, "this": true, "that": true, "from": true,
	"been": true, "what": true, "when": true, "how": true,
}

func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	// Cut on a rune boundary so multi-byte text stays valid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
