package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrDuplicateRecord guards idempotent re-ingestion: the same
	// (source, text, created_at) triple was stored before.
	ErrDuplicateRecord = goerr.New("duplicate record")

	// ErrNotFound means the record is absent from both tiers.
	ErrNotFound = goerr.New("record not found")

	// ErrEmbeddingUnavailable means the embedding backend errored;
	// retrieval falls back to lexical-only mode.
	ErrEmbeddingUnavailable = goerr.New("embedding backend unavailable")

	// ErrRerankFailed is non-fatal: the fused ordering is kept.
	ErrRerankFailed = goerr.New("rerank failed")

	// ErrUnsupportedClaim means a reasoning step cited a record id that was
	// not in its evidence set. A contract violation, not a data problem.
	ErrUnsupportedClaim = goerr.New("claim cites record outside evidence set")

	// ErrReasoningBudget means the step ceiling was exceeded.
	ErrReasoningBudget = goerr.New("reasoning step budget exceeded")
)
