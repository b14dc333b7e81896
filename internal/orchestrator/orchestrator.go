// Package orchestrator is the public façade composing every other
// internal package into the episode lifecycle, retrieval, relationship,
// sandbox, and audit operations the service exposes. It owns no
// algorithms of its own — it wires storage, capacity, pattern,
// retrieval, relationship, sandbox, and audit together the way the
// teacher's main.go wires spawner, bridge, and NATS client: explicit
// construction, everything passed in, no package-level singletons.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-o-hub/memcore/internal/audit"
	"github.com/d-o-hub/memcore/internal/cache"
	"github.com/d-o-hub/memcore/internal/capacity"
	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/durable"
	"github.com/d-o-hub/memcore/internal/logging"
	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/pattern"
	"github.com/d-o-hub/memcore/internal/pool"
	"github.com/d-o-hub/memcore/internal/relationship"
	"github.com/d-o-hub/memcore/internal/retrieval"
	"github.com/d-o-hub/memcore/internal/sandbox"
	"github.com/d-o-hub/memcore/internal/storage"
)

// Orchestrator is the memory service's public entry point.
type Orchestrator struct {
	cfg   *config.Config
	log   logging.Logger
	db    *durable.DB
	pool  *pool.Pool
	store *storage.Store

	capacity *capacity.Manager
	pattern  *pattern.Pipeline
	index    *retrieval.Index
	retrieve *retrieval.Retriever
	graph    *relationship.Graph
	sandbox  *sandbox.Sandbox
	audit    *audit.Recorder
	locks    *memcore.KeyedLocks
}

// New builds an Orchestrator from cfg: opens the durable store, builds
// the pool/cache/storage layers on top of it, then the capacity,
// pattern, retrieval, relationship, sandbox, and audit components, and
// finally rehydrates the in-memory retrieval index and relationship
// graph from durable state so a restart doesn't lose ranking history or
// edges.
func New(cfg *config.Config, log logging.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logging.Noop()
	}
	reg := prometheus.DefaultRegisterer

	db, err := durable.Open(cfg.Durable.Path)
	if err != nil {
		return nil, fmt.Errorf("orchestrator.New: open durable store: %w", err)
	}

	p := pool.New(cfg.Pool, db.Conn(), reg)

	cacheStore, err := cache.New(cfg.Cache, reg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("orchestrator.New: build cache: %w", err)
	}

	store := storage.New(cacheStore, db, p)

	auditor, err := audit.New(cfg.Audit, log)
	if err != nil {
		p.Close()
		db.Close()
		return nil, fmt.Errorf("orchestrator.New: build audit recorder: %w", err)
	}

	o := &Orchestrator{
		cfg:      cfg,
		log:      log.With("component", "orchestrator"),
		db:       db,
		pool:     p,
		store:    store,
		capacity: capacity.New(store, cfg.Capacity),
		// provider is nil: embedding-based clustering is out of scope
		// (no remote embedding provider per spec's non-goals), so
		// pattern clustering always falls back to tag-based Jaccard
		// similarity.
		pattern:  pattern.New(cfg.Pattern, nil, log),
		index:    retrieval.NewIndex(),
		graph:    relationship.NewGraph(),
		sandbox:  sandbox.New(cfg.Sandbox, log),
		audit:    auditor,
		locks:    memcore.NewKeyedLocks(),
	}
	o.retrieve = retrieval.NewRetriever(o.index, cfg.Retrieval)

	if err := o.rehydrate(context.Background()); err != nil {
		o.Close()
		return nil, fmt.Errorf("orchestrator.New: rehydrate in-memory state: %w", err)
	}

	return o, nil
}

// rehydrate loads every active episode into the retrieval index and every
// relationship into the graph, so restart doesn't start the service with
// an empty view of durable state.
func (o *Orchestrator) rehydrate(ctx context.Context) error {
	episodes, err := o.store.ListEpisodes(ctx, memcore.EpisodeFilter{Limit: o.cfg.Capacity.MaxEpisodes})
	if err != nil {
		return fmt.Errorf("list episodes: %w", err)
	}
	for _, e := range episodes {
		o.index.Insert(entryFor(e), e.StartTime)
	}

	rels, err := o.store.ListAllRelationships(ctx)
	if err != nil {
		return fmt.Errorf("list relationships: %w", err)
	}
	o.graph.Load(rels)

	return nil
}

// entryFor projects an episode into the retrieval index's lightweight
// entry shape.
func entryFor(e *memcore.Episode) *retrieval.Entry {
	return &retrieval.Entry{
		EpisodeID: e.ID,
		Domain:    e.Domain,
		TaskType:  e.TaskType,
		Language:  e.Language,
		Tags:      e.Tags,
		StartTime: e.StartTime,
	}
}

// Close releases every owned resource: the audit recorder, then the pool,
// then the durable store. Only the durable store's Close reports an
// error, and that error is what Close returns.
func (o *Orchestrator) Close() error {
	o.audit.Close()
	o.pool.Close()
	return o.db.Close()
}
