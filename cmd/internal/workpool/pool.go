package workpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultIdleTimeout = 60 * time.Second

// Config sizes a Pool.
type Config struct {
	Name          string
	CoreSize      int
	MaxSize       int
	QueueCapacity int
	IdleTimeout   time.Duration
}

func (c Config) normalized() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.CoreSize < 0 {
		c.CoreSize = 0
	}
	if c.MaxSize < c.CoreSize {
		c.MaxSize = c.CoreSize
	}
	if c.MaxSize < 1 {
		c.MaxSize = 1
	}
	if c.QueueCapacity < 0 {
		c.QueueCapacity = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return c
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Name       string
	Workers    int
	Queued     int
	CallerRuns int64
}

// Pool is a bounded goroutine pool with a caller-runs overflow policy.
type Pool struct {
	cfg Config
	log *slog.Logger

	queue chan func()

	mu      sync.Mutex
	workers int
	closed  bool

	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	callerRuns atomic.Int64
}

// New builds a Pool. Workers are started lazily on submission.
func New(cfg Config, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		cfg:    cfg,
		log:    log.With("pool", cfg.Name),
		queue:  make(chan func(), cfg.QueueCapacity),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Name returns the configured pool name.
func (p *Pool) Name() string { return p.cfg.Name }

// Submit runs fn on p and returns its Future. After Shutdown the Future is
// already failed with ErrPoolClosed.
func Submit[T any](p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T](p.ctx)
	if err := p.execute(func() {
		if !f.begin() {
			return
		}
		v, err := invoke(p, f.ctx, fn)
		f.finish(v, err)
	}); err != nil {
		f.cancel()
		return failedFuture[T](err)
	}
	return f
}

// Go runs fn on p without a result handle. Panics are recovered and logged.
func (p *Pool) Go(fn func(ctx context.Context)) error {
	return p.execute(func() {
		_, _ = invoke(p, p.ctx, func(ctx context.Context) (struct{}, error) {
			fn(ctx)
			return struct{}{}, nil
		})
	})
}

func invoke[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(p.cfg.Name).Inc()
			p.log.Error("workpool.task.panic", "panic", r)
			var zero T
			v, err = zero, &PanicError{Pool: p.cfg.Name, Value: r}
		}
	}()
	return fn(ctx)
}

func (p *Pool) execute(run func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	submittedTotal.WithLabelValues(p.cfg.Name).Inc()

	if p.workers < p.cfg.CoreSize {
		p.spawnLocked(run)
		p.mu.Unlock()
		return nil
	}

	select {
	case p.queue <- run:
		if p.workers == 0 {
			p.spawnLocked(nil)
		}
		queueDepthGauge.WithLabelValues(p.cfg.Name).Set(float64(len(p.queue)))
		p.mu.Unlock()
		return nil
	default:
	}

	if p.workers < p.cfg.MaxSize {
		p.spawnLocked(run)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.callerRuns.Add(1)
	callerRunsTotal.WithLabelValues(p.cfg.Name).Inc()
	p.log.Debug("workpool.caller_runs", "queued", len(p.queue))
	run()
	return nil
}

func (p *Pool) spawnLocked(first func()) {
	p.workers++
	workersGauge.WithLabelValues(p.cfg.Name).Set(float64(p.workers))
	p.wg.Add(1)
	go p.worker(first)
}

func (p *Pool) worker(first func()) {
	defer p.wg.Done()

	if first != nil {
		first()
	}

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case run := <-p.queue:
			queueDepthGauge.WithLabelValues(p.cfg.Name).Set(float64(len(p.queue)))
			run()
			idle.Reset(p.cfg.IdleTimeout)

		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.cfg.IdleTimeout)

		case <-p.quit:
			p.drain()
			return
		}
	}
}

// retire lets a worker above the core size exit once the queue is empty.
func (p *Pool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.workers <= p.cfg.CoreSize || len(p.queue) > 0 {
		return false
	}
	p.workers--
	workersGauge.WithLabelValues(p.cfg.Name).Set(float64(p.workers))
	return true
}

func (p *Pool) drain() {
	for {
		select {
		case run := <-p.queue:
			run()
		default:
			p.mu.Lock()
			p.workers--
			workersGauge.WithLabelValues(p.cfg.Name).Set(float64(p.workers))
			p.mu.Unlock()
			return
		}
	}
}

// Shutdown stops accepting work and waits for queued and running units.
// If ctx ends first, running units see their context cancelled and units still
// queued settle as cancelled; Shutdown then returns ctx.Err().
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("workpool.shutdown", "caller_runs", p.callerRuns.Load())
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.Warn("workpool.shutdown.interrupted", "err", ctx.Err())
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:       p.cfg.Name,
		Workers:    p.workers,
		Queued:     len(p.queue),
		CallerRuns: p.callerRuns.Load(),
	}
}
