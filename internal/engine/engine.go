// Package engine coordinates the store, retriever, reasoner, and lateral
// linker behind a single ingest/query surface. Sections of a query run
// concurrently and degrade independently; a slow or failing section marks
// itself degraded instead of failing the whole query.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/context-engine/internal/embedding"
	"github.com/rcliao/context-engine/internal/lateral"
	"github.com/rcliao/context-engine/internal/model"
	"github.com/rcliao/context-engine/internal/reason"
	"github.com/rcliao/context-engine/internal/retrieve"
	"github.com/rcliao/context-engine/internal/store"
)

// Config holds the orchestrator defaults. Per-query Options override the
// overridable subset.
type Config struct {
	// TopK is the default number of hits per query.
	TopK int

	// DisableReasoning skips the reasoning section unless a query opts back
	// in. Reasoning is on by default so a zero Config behaves like
	// DefaultConfig.
	DisableReasoning bool

	// Dimensions restricts lateral scanning; empty means all dimensions.
	Dimensions []model.Dimension

	// MinStrength is the lateral connection cutoff.
	MinStrength float64

	// SectionTimeout bounds each query section independently.
	SectionTimeout time.Duration

	// PromoteAfter and PromoteAccessCount gate tier promotion: an embedded
	// record is promoted once it is old enough or hot enough.
	PromoteAfter       time.Duration
	PromoteAccessCount int

	// QueueSize caps the background embedding queue. A full queue drops the
	// enqueue, not the record; the pending sweep on the next start catches
	// up.
	QueueSize int
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		TopK:               10,
		MinStrength:        lateral.DefaultMinStrength,
		SectionTimeout:     5 * time.Second,
		PromoteAfter:       72 * time.Hour,
		PromoteAccessCount: 5,
		QueueSize:          64,
	}
}

// Options are the per-query overrides. Zero values fall back to Config.
type Options struct {
	TopK       int
	Dimensions []model.Dimension
	Reasoning  *bool
	Timeout    time.Duration
}

type embedJob struct {
	id   string
	text string
}

// Orchestrator is the assembled engine. Construct with New, stop with
// Close. The caller owns the store's lifecycle.
type Orchestrator struct {
	store     store.Store
	retriever *retrieve.Retriever
	reasoner  *reason.Reasoner
	linker    *lateral.Linker
	embedder  embedding.Embedder
	cfg       Config
	logger    *zap.Logger

	queue chan embedJob
	done  chan struct{}
	idle  chan struct{}
}

// New wires an Orchestrator and starts its background embedding worker.
// embedder may be nil, in which case records stay lexical-only.
func New(st store.Store, retriever *retrieve.Retriever, reasoner *reason.Reasoner, linker *lateral.Linker, embedder embedding.Embedder, cfg Config, logger *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = def.MinStrength
	}
	if cfg.SectionTimeout <= 0 {
		cfg.SectionTimeout = def.SectionTimeout
	}
	if cfg.PromoteAfter <= 0 {
		cfg.PromoteAfter = def.PromoteAfter
	}
	if cfg.PromoteAccessCount <= 0 {
		cfg.PromoteAccessCount = def.PromoteAccessCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		store:     st,
		retriever: retriever,
		reasoner:  reasoner,
		linker:    linker,
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan embedJob, cfg.QueueSize),
		done:      make(chan struct{}),
		idle:      make(chan struct{}),
	}
	go o.worker()
	return o
}

// Ingest stores a record and schedules it for background embedding. Storage
// errors, including duplicate detection, propagate to the caller; embedding
// failures never do.
func (o *Orchestrator) Ingest(ctx context.Context, p store.StoreParams) (*model.Record, error) {
	rec, err := o.store.Store(ctx, p)
	if err != nil {
		return nil, err
	}
	if o.embedder != nil {
		select {
		case o.queue <- embedJob{id: rec.ID, text: rec.Text}:
		default:
			o.logger.Warn("embedding queue full, record stays pending",
				zap.String("id", rec.ID))
		}
	}
	return rec, nil
}

// Query builds an IntelligentContext for ref, which is either a record id
// or free text. Sections run concurrently; each degrades on its own and the
// context as a whole never fails.
func (o *Orchestrator) Query(ctx context.Context, ref string, opts Options) (*model.IntelligentContext, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	dims := opts.Dimensions
	if len(dims) == 0 {
		dims = o.cfg.Dimensions
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.cfg.SectionTimeout
	}
	reasoning := !o.cfg.DisableReasoning
	if opts.Reasoning != nil {
		reasoning = *opts.Reasoning
	}

	query, recordID := o.resolveRef(ctx, ref)
	ic := &model.IntelligentContext{Query: query, RecordID: recordID}

	// Each consumer takes one copy of the retrieval result.
	hitsCh := make(chan []model.RetrievalHit, 2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rctx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		res, err := o.retriever.Retrieve(rctx, query, topK)
		var hits []model.RetrievalHit
		switch {
		case err != nil:
			ic.RetrievalStatus = degraded(err)
		case res.LexicalOnly:
			ic.RetrievalStatus = model.SectionStatus{Degraded: true, Reason: "semantic stage unavailable, lexical results only"}
			hits = res.Hits
		default:
			hits = res.Hits
		}
		ic.Hits = hits
		hitsCh <- hits
		hitsCh <- hits
		return nil
	})

	g.Go(func() error {
		hits := <-hitsCh
		if !reasoning {
			return nil
		}
		rctx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		trace, err := o.reasoner.Reason(rctx, query, hits)
		if err != nil {
			ic.ReasoningStatus = degraded(err)
		}
		ic.Reasoning = trace
		return nil
	})

	g.Go(func() error {
		hits := <-hitsCh
		anchor := recordID
		if anchor == "" && len(hits) > 0 {
			anchor = hits[0].RecordID
		}
		if anchor == "" {
			return nil // nothing to anchor lateral scanning on
		}
		lctx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		conns, err := o.linker.FindConnections(lctx, anchor, dims, o.cfg.MinStrength)
		if err != nil {
			ic.LateralStatus = degraded(err)
			return nil
		}
		ic.Connections = conns
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, goerr.Wrap(err, "assemble context")
	}
	// Caller cancellation discards the partial context instead of passing
	// it off as merely degraded.
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "query canceled")
	}
	ic.GeneratedAt = time.Now().UTC()
	return ic, nil
}

// resolveRef decides whether ref names a stored record or is free query
// text. A ULID-shaped ref that resolves becomes a record anchor and its
// text the query.
func (o *Orchestrator) resolveRef(ctx context.Context, ref string) (query, recordID string) {
	trimmed := strings.TrimSpace(ref)
	if _, err := ulid.Parse(trimmed); err != nil {
		return ref, ""
	}
	rec, err := o.store.Get(ctx, trimmed)
	if err != nil {
		return ref, ""
	}
	return rec.Text, rec.ID
}

// Close drains the embedding queue and stops the background worker, so a
// short-lived process still embeds what it ingested.
func (o *Orchestrator) Close() {
	close(o.done)
	<-o.idle
}

func (o *Orchestrator) worker() {
	defer close(o.idle)
	if o.embedder != nil {
		o.recoverPending()
	}
	for {
		select {
		case <-o.done:
			for {
				select {
				case job := <-o.queue:
					o.embedAndSweep(job)
				default:
					return
				}
			}
		case job := <-o.queue:
			o.embedAndSweep(job)
		}
	}
}

// recoverPending embeds records left without a vector by an earlier run,
// dropped enqueues, or a failed embed attempt.
func (o *Orchestrator) recoverPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := o.store.PendingEmbedding(ctx, o.cfg.QueueSize)
	if err != nil {
		o.logger.Warn("pending embedding sweep failed", zap.Error(err))
		return
	}
	for _, r := range recs {
		o.embedAndSweep(embedJob{id: r.ID, text: r.Text})
	}
	if len(recs) > 0 {
		o.logger.Info("recovered pending embeddings", zap.Int("records", len(recs)))
	}
}

// embedAndSweep embeds one record, then promotes every record the policy
// has made eligible. Failures are logged and dropped; the record simply
// stays in its current state.
func (o *Orchestrator) embedAndSweep(job embedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vec, err := o.embedder.Embed(ctx, job.text)
	if err != nil {
		o.logger.Warn("background embedding failed",
			zap.String("id", job.id), zap.Error(err))
		return
	}
	if err := o.store.SetEmbedding(ctx, job.id, vec); err != nil {
		o.logger.Warn("persisting embedding failed",
			zap.String("id", job.id), zap.Error(err))
		return
	}

	ids, err := o.store.PromotionCandidates(ctx, o.cfg.PromoteAfter, o.cfg.PromoteAccessCount)
	if err != nil {
		o.logger.Warn("promotion sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := o.store.Promote(ctx, id); err != nil {
			o.logger.Warn("promotion failed", zap.String("id", id), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		o.logger.Info("promotion sweep", zap.Int("promoted", len(ids)))
	}
}

func degraded(err error) model.SectionStatus {
	return model.SectionStatus{Degraded: true, Reason: err.Error()}
}
