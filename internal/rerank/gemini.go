package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/rcliao/context-engine/internal/model"
)

// GeminiReranker asks a Gemini model to score each candidate's relevance to
// the query. Best effort by contract: callers fall back to the fused
// ordering when it errors.
type GeminiReranker struct {
	client *genai.Client
	model  string
}

// NewGeminiReranker creates a model-backed reranker. Credentials come from
// GEMINI_API_KEY / GOOGLE_API_KEY via the genai client config.
func NewGeminiReranker(ctx context.Context, model string) (*GeminiReranker, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{})
	if err != nil {
		return nil, goerr.Wrap(err, "create genai client")
	}
	return &GeminiReranker{client: client, model: model}, nil
}

func (r *GeminiReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Score each numbered text for relevance to the query %q on a 0.0-1.0 scale.\n", query)
	sb.WriteString("Respond with a JSON array of numbers, one per text, in order.\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Text)
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model,
		genai.Text(sb.String()),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, goerr.Wrap(model.ErrRerankFailed, "gemini rerank request", goerr.V("cause", err.Error()))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.Wrap(model.ErrRerankFailed, "empty rerank response")
	}
	raw := resp.Candidates[0].Content.Parts[0].Text

	var scores []float64
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, goerr.Wrap(model.ErrRerankFailed, "parse rerank scores", goerr.V("response", raw))
	}
	if len(scores) != len(candidates) {
		return nil, goerr.Wrap(model.ErrRerankFailed, "score count mismatch",
			goerr.V("want", len(candidates)), goerr.V("got", len(scores)))
	}

	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		} else if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}
