// Package pool implements a bounded pool of logical durable-store
// connection slots on top of a *sql.DB: acquire/release handles, async
// health probing, and adaptive sizing per the configured scaling rule.
package pool

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// Handle is a scoped connection slot; Release must be called exactly
// once to return it to the pool.
type Handle struct {
	pool      *Pool
	released  atomic.Bool
}

// Release returns the handle's slot to the pool. Calling it more than
// once is a no-op.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.pool.release()
}

// Statistics is the pool's observability surface.
type Statistics struct {
	Created       int64
	Active        int64
	Checkouts     int64
	QueueLength   int64
	MeanWaitMs    float64
	HealthHits    int64
	HealthMisses  int64
	CurrentSize   int
	TargetSize    int
}

// Pool is a bounded pool of logical connection slots over a *sql.DB.
// SQLite (the durable store's default backend) serializes writers at the
// driver level regardless of logical slot count; the slot accounting and
// adaptive sizing here model the spec's pool contract independent of
// which durable backend sits underneath.
type Pool struct {
	db     *sql.DB
	cfg    config.PoolConfig
	tokens chan struct{}

	mu             sync.Mutex
	currentSize    int
	targetSize     int
	pendingRemoval int
	lastMeanWaits  []time.Duration

	created      atomic.Int64
	active       atomic.Int64
	checkouts    atomic.Int64
	queueLength  atomic.Int64
	healthHits   atomic.Int64
	healthMisses atomic.Int64
	unhealthy    atomic.Bool
	meanWaitNs   atomic.Int64

	metrics *promMetrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type promMetrics struct {
	active      prometheus.Gauge
	currentSize prometheus.Gauge
	checkouts   prometheus.Counter
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		active:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "memcore_pool_active", Help: "In-use pool slots."}),
		currentSize: prometheus.NewGauge(prometheus.GaugeOpts{Name: "memcore_pool_current_size", Help: "Current pool capacity."}),
		checkouts:   prometheus.NewCounter(prometheus.CounterOpts{Name: "memcore_pool_checkouts_total", Help: "Total successful acquires."}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.currentSize, m.checkouts)
	}
	return m
}

// New builds a pool sized to cfg.MinSize, backed by db, and starts its
// background health-check and adaptive-sizing goroutines. Call Close to
// stop them.
func New(cfg config.PoolConfig, db *sql.DB, reg prometheus.Registerer) *Pool {
	p := &Pool{
		db:          db,
		cfg:         cfg,
		tokens:      make(chan struct{}, cfg.MaxSize),
		currentSize: cfg.MinSize,
		targetSize:  cfg.MinSize,
		metrics:     newPromMetrics(reg),
		stopCh:      make(chan struct{}),
	}
	for i := 0; i < cfg.MinSize; i++ {
		p.tokens <- struct{}{}
		p.created.Add(1)
	}

	p.wg.Add(2)
	go p.healthLoop()
	go p.scaleLoop()
	return p
}

// Acquire waits up to cfg.ConnectionTimeout (bounded further by ctx) for
// a free slot. If the pool's last health probe failed, Acquire fails
// immediately with a retryable ConnectionFailure rather than handing out
// a slot it believes is broken.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	const op = "pool.Acquire"

	if p.unhealthy.Load() {
		return nil, memcore.NewConnectionFailure(op, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	p.queueLength.Add(1)
	start := time.Now()
	defer p.queueLength.Add(-1)

	select {
	case <-p.tokens:
		p.recordWait(time.Since(start))
		p.active.Add(1)
		p.checkouts.Add(1)
		p.metrics.active.Set(float64(p.active.Load()))
		p.metrics.checkouts.Inc()
		return &Handle{pool: p}, nil
	case <-ctx.Done():
		return nil, memcore.NewTimeout(op)
	}
}

// release returns a slot to the pool unless a pending downsize wants to
// retire it instead.
func (p *Pool) release() {
	p.active.Add(-1)
	p.metrics.active.Set(float64(p.active.Load()))

	p.mu.Lock()
	if p.pendingRemoval > 0 {
		p.pendingRemoval--
		p.currentSize--
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	select {
	case p.tokens <- struct{}{}:
	default:
		// Should never happen: token count never exceeds currentSize <= cap.
	}
}

func (p *Pool) recordWait(d time.Duration) {
	const alpha = 0.2 // EWMA smoothing factor
	for {
		old := p.meanWaitNs.Load()
		var next int64
		if old == 0 {
			next = int64(d)
		} else {
			next = int64(float64(old)*(1-alpha) + float64(d)*alpha)
		}
		if p.meanWaitNs.CompareAndSwap(old, next) {
			return
		}
	}
}

// Statistics returns a snapshot of the pool's observability counters.
func (p *Pool) Statistics() Statistics {
	p.mu.Lock()
	cur, target := p.currentSize, p.targetSize
	p.mu.Unlock()

	return Statistics{
		Created:      p.created.Load(),
		Active:       p.active.Load(),
		Checkouts:    p.checkouts.Load(),
		QueueLength:  p.queueLength.Load(),
		MeanWaitMs:   float64(p.meanWaitNs.Load()) / float64(time.Millisecond),
		HealthHits:   p.healthHits.Load(),
		HealthMisses: p.healthMisses.Load(),
		CurrentSize:  cur,
		TargetSize:   target,
	}
}

// Close stops the background goroutines. It does not close the
// underlying *sql.DB, which durable.DB owns.
func (p *Pool) Close() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HealthCheckTimeout)
			err := p.db.PingContext(ctx)
			cancel()
			if err != nil {
				p.healthMisses.Add(1)
				p.unhealthy.Store(true)
				continue
			}
			p.healthHits.Add(1)
			p.unhealthy.Store(false)
		}
	}
}

func (p *Pool) scaleLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ScaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.rescale()
		}
	}
}

// rescale applies the spec's scaling rule once. Growth adds tokens
// immediately; shrinkage marks slots for retirement as they're released,
// so an in-flight acquirer is never cancelled by a resize.
func (p *Pool) rescale() {
	p.mu.Lock()
	current := p.currentSize
	p.mu.Unlock()
	if current == 0 {
		return
	}

	active := p.active.Load()
	queue := p.queueLength.Load()
	meanWait := time.Duration(p.meanWaitNs.Load())
	utilization := float64(active) / float64(current)

	p.mu.Lock()
	defer p.mu.Unlock()

	trendNonIncreasing := p.recordTrend(meanWait)

	var target int
	switch {
	case utilization > 0.8 || int(queue) > p.cfg.MaxQueueLength || meanWait > p.cfg.MaxWaitTime:
		s := 1.2
		if utilization > 0.9 {
			s = 2.0
		} else if utilization > 0.8 {
			s = 1.5
		}
		target = int(float64(current) * s)
		if target > p.cfg.MaxSize {
			target = p.cfg.MaxSize
		}
	case utilization < 0.3 && meanWait < p.cfg.MinWaitTime && trendNonIncreasing:
		target = int(float64(current) * 0.8)
		if target < p.cfg.MinSize {
			target = p.cfg.MinSize
		}
	default:
		target = current
	}

	p.targetSize = target
	if target > current {
		for i := 0; i < target-current; i++ {
			select {
			case p.tokens <- struct{}{}:
				p.created.Add(1)
			default:
			}
		}
		p.currentSize = target
	} else if target < current {
		// Retire (current-target) slots as they're released rather than
		// yanking tokens that might be checked out right now.
		toRemove := current - target
		for i := 0; i < toRemove; i++ {
			select {
			case <-p.tokens:
				p.currentSize--
			default:
				p.pendingRemoval++
			}
		}
	}
	p.metrics.currentSize.Set(float64(p.currentSize))
}

// recordTrend keeps the last few mean-wait samples and reports whether
// the most recent sample is no higher than the one before it.
func (p *Pool) recordTrend(meanWait time.Duration) bool {
	p.lastMeanWaits = append(p.lastMeanWaits, meanWait)
	if len(p.lastMeanWaits) > 3 {
		p.lastMeanWaits = p.lastMeanWaits[len(p.lastMeanWaits)-3:]
	}
	if len(p.lastMeanWaits) < 2 {
		return true
	}
	return p.lastMeanWaits[len(p.lastMeanWaits)-1] <= p.lastMeanWaits[len(p.lastMeanWaits)-2]
}
