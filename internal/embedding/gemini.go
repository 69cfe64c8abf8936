package embedding

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/rcliao/context-engine/internal/model"
)

// QueryPrefix marks a text as a search query so the Gemini backend can use
// the retrieval-query task type instead of the document one.
const QueryPrefix = "query: "

// Gemini task types for retrieval embeddings.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGeminiEmbedder creates an embedder backed by Gemini. Credentials come
// from GEMINI_API_KEY / GOOGLE_API_KEY via the genai client config.
func NewGeminiEmbedder(ctx context.Context, model string, dims int) (*GeminiEmbedder, error) {
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dims == 0 {
		dims = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{})
	if err != nil {
		return nil, goerr.Wrap(err, "create genai client")
	}

	return &GeminiEmbedder{client: client, model: model, dims: dims}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	text, task := splitTask(text)

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "gemini embed failed", goerr.V("cause", err.Error()))
	}
	if len(result.Embeddings) == 0 {
		return nil, goerr.New("no embeddings returned")
	}

	vec := result.Embeddings[0].Values
	Normalize(vec)
	return vec, nil
}

func (e *GeminiEmbedder) Dims() int { return e.dims }

// splitTask strips QueryPrefix and picks the matching Gemini task type.
func splitTask(text string) (string, string) {
	if strings.HasPrefix(text, QueryPrefix) {
		return strings.TrimPrefix(text, QueryPrefix), taskRetrievalQuery
	}
	return text, taskRetrievalDocument
}
