// Package lateral discovers non-obvious connections between stored records
// across fixed dimensions such as topic, emotional tone, and recurrence.
// Connections are undirected and reported once per record pair and
// dimension.
package lateral

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/rcliao/context-engine/internal/model"
	"github.com/rcliao/context-engine/internal/store"
)

// DefaultMinStrength is the connection cutoff used when callers have no
// opinion.
const DefaultMinStrength = 0.2

// Config bounds the candidate pool the linker scans.
type Config struct {
	// Window widens the pool to records from either tier created within
	// this duration of the target.
	Window time.Duration

	// MaxCandidates caps the pool size per listing.
	MaxCandidates int

	// TemporalHalfLife controls the decay of the temporal-proximity
	// dimension.
	TemporalHalfLife time.Duration

	// RecurrenceMinGap is the minimum separation before shared terms count
	// as a recurring theme rather than one conversation.
	RecurrenceMinGap time.Duration
}

// DefaultConfig returns the linker defaults.
func DefaultConfig() Config {
	return Config{
		Window:           14 * 24 * time.Hour,
		MaxCandidates:    200,
		TemporalHalfLife: 48 * time.Hour,
		RecurrenceMinGap: 6 * 24 * time.Hour,
	}
}

// Linker scans stored records for cross-dimensional connections to a
// target record.
type Linker struct {
	store  store.Store
	cfg    Config
	logger *zap.Logger
}

// New creates a Linker over the given store.
func New(st store.Store, cfg Config, logger *zap.Logger) *Linker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{store: st, cfg: cfg, logger: logger}
}

// FindConnections evaluates the requested dimensions between the target
// record and a bounded candidate pool, returning every connection at or
// above minStrength. An empty dims slice means all dimensions.
func (l *Linker) FindConnections(ctx context.Context, recordID string, dims []model.Dimension, minStrength float64) ([]model.LateralConnection, error) {
	target, err := l.store.Get(ctx, recordID)
	if err != nil {
		return nil, goerr.Wrap(err, "load connection target", goerr.V("id", recordID))
	}

	if len(dims) == 0 {
		dims = model.AllDimensions()
	}
	for _, d := range dims {
		if !model.ValidDimensions[d] {
			return nil, goerr.New("unknown connection dimension", goerr.V("dimension", string(d)))
		}
	}

	candidates, err := l.candidatePool(ctx, target)
	if err != nil {
		return nil, err
	}

	type pairKey struct {
		a, b string
		dim  model.Dimension
	}
	seen := make(map[pairKey]bool)
	var conns []model.LateralConnection

	for _, dim := range dims {
		fn := strengthFuncs[dim]
		for _, cand := range candidates {
			strength, rationale := fn(target, cand, l.cfg)
			if strength < minStrength || strength <= 0 {
				continue
			}
			a, b := target.ID, cand.ID
			if b < a {
				a, b = b, a
			}
			key := pairKey{a: a, b: b, dim: dim}
			if seen[key] {
				continue
			}
			seen[key] = true
			conns = append(conns, model.LateralConnection{
				RecordA:   a,
				RecordB:   b,
				Dimension: dim,
				Strength:  strength,
				Rationale: rationale,
			})
		}
	}

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].Strength != conns[j].Strength {
			return conns[i].Strength > conns[j].Strength
		}
		if conns[i].Dimension != conns[j].Dimension {
			return conns[i].Dimension < conns[j].Dimension
		}
		if conns[i].RecordA != conns[j].RecordA {
			return conns[i].RecordA < conns[j].RecordA
		}
		return conns[i].RecordB < conns[j].RecordB
	})

	l.logger.Debug("lateral scan complete",
		zap.String("target", recordID),
		zap.Int("candidates", len(candidates)),
		zap.Int("connections", len(conns)))
	return conns, nil
}

// candidatePool merges the target's tier with a time window spanning both
// tiers, deduplicated by id and excluding the target itself.
func (l *Linker) candidatePool(ctx context.Context, target *model.Record) ([]*model.Record, error) {
	sameTier, err := l.store.List(ctx, store.ListParams{
		Tier:  target.Tier,
		Limit: l.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "list tier candidates")
	}

	windowed, err := l.store.List(ctx, store.ListParams{
		Since: target.CreatedAt.Add(-l.cfg.Window),
		Until: target.CreatedAt.Add(l.cfg.Window),
		Limit: l.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "list window candidates")
	}

	byID := make(map[string]*model.Record, len(sameTier)+len(windowed))
	for _, r := range sameTier {
		if r.ID != target.ID {
			byID[r.ID] = r
		}
	}
	for _, r := range windowed {
		if r.ID != target.ID {
			byID[r.ID] = r
		}
	}

	pool := make([]*model.Record, 0, len(byID))
	for _, r := range byID {
		pool = append(pool, r)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool, nil
}
