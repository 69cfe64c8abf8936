// Package store provides the tiered record store: SQLite as the
// authoritative record table and a chromem-go collection per tier as the
// derived semantic index.
package store

import (
	"context"
	"time"

	"github.com/rcliao/context-engine/internal/model"
)

// StoreParams holds parameters for ingesting a record.
type StoreParams struct {
	Text       string
	Source     string
	Tags       []string
	Supersedes string    // optional id of the record this one corrects
	CreatedAt  time.Time // zero means now
}

// ListParams holds parameters for listing records.
type ListParams struct {
	Tier   model.Tier // empty means both tiers
	Source string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// LexicalParams holds parameters for lexical search.
type LexicalParams struct {
	Query string
	TopK  int
	Tier  model.Tier // empty means both tiers
}

// SemanticParams holds parameters for semantic search.
type SemanticParams struct {
	Embedding []float32
	TopK      int
	Tier      model.Tier // empty means both tiers
}

// LexicalHit pairs a record with its term-frequency score.
type LexicalHit struct {
	Record *model.Record
	Score  float64
}

// SemanticHit pairs a record with its cosine similarity to the query.
type SemanticHit struct {
	Record     *model.Record
	Similarity float64
}

// Store defines the tiered record storage contract.
type Store interface {
	// Store ingests a record into the recent tier. Fails with
	// model.ErrDuplicateRecord when the (source, text, created_at) triple
	// was stored before.
	Store(ctx context.Context, p StoreParams) (*model.Record, error)

	// Get retrieves a record by id from either tier and bumps its access
	// counter. Fails with model.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*model.Record, error)

	// SearchLexical scores records by weighted token overlap with the
	// query. Deterministic for a fixed store state.
	SearchLexical(ctx context.Context, p LexicalParams) ([]LexicalHit, error)

	// SearchSemantic queries the semantic index. Records without a
	// computed embedding are invisible until SetEmbedding runs.
	SearchSemantic(ctx context.Context, p SemanticParams) ([]SemanticHit, error)

	// SetEmbedding persists a record's vector and adds it to the index.
	SetEmbedding(ctx context.Context, id string, vec []float32) error

	// Promote moves a record from the recent to the archival tier.
	// Idempotent: promoting an archival record is a no-op.
	Promote(ctx context.Context, id string) error

	// PromotionCandidates lists recent-tier records that have an embedding
	// and are old enough or accessed often enough to promote.
	PromotionCandidates(ctx context.Context, minAge time.Duration, minAccess int) ([]string, error)

	// List returns records matching the filters, newest first.
	List(ctx context.Context, p ListParams) ([]*model.Record, error)

	// PendingEmbedding lists records still waiting for an embedding,
	// oldest first. Lets the embed worker recover records whose first
	// attempt failed.
	PendingEmbedding(ctx context.Context, limit int) ([]*model.Record, error)

	// Close closes the store.
	Close() error
}
