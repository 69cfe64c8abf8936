// Package model defines the core record and result types for the context engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tier identifies which storage tier a record lives in.
type Tier string

const (
	// TierRecent holds fresh records with fast lexical lookup.
	TierRecent Tier = "recent"
	// TierArchival holds promoted records served by the semantic index.
	TierArchival Tier = "archival"
)

// ValidTiers are the allowed tier values.
var ValidTiers = map[Tier]bool{
	TierRecent:   true,
	TierArchival: true,
}

// Record is the atomic unit of memory. Records are append-only: corrections
// are new records pointing at the old one via Supersedes.
type Record struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Source         string     `json:"source"`
	Tags           []string   `json:"tags,omitempty"`
	Tier           Tier       `json:"tier"`
	Supersedes     string     `json:"supersedes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Embedding      []float32  `json:"-"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// HasEmbedding reports whether the record's vector has been computed.
func (r *Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// ContentHash returns the hex SHA-256 of a record body. Together with source
// and created_at it forms the idempotent re-ingestion key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
