// Package background runs best-effort tasks off the request path on a fixed
// set of goroutines with a bounded backlog.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

var (
	// ErrPoolFull is returned by Submit when the backlog is at capacity.
	ErrPoolFull = errors.New("background: pool is full")
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("background: pool is closed")
)

type task struct {
	name string
	fn   func(ctx context.Context)
}

// Pool executes submitted tasks. Submit never blocks.
type Pool struct {
	name        string
	tasks       chan task
	taskTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.PipelineMetrics

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Pool.
type Option func(*Pool)

// WithTaskTimeout bounds each task's context.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New starts a pool with workers goroutines and room for queueSize pending tasks.
func New(name string, workers, queueSize int, logger *logging.Logger, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:        name,
		tasks:       make(chan task, queueSize),
		taskTimeout: time.Minute,
		logger:      logger.With("pool", name),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit queues fn. It fails fast with ErrPoolFull when no slot is free.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.ObserveBackground(p.name, "rejected_closed")
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task{name: name, fn: fn}:
		p.metrics.ObserveBackground(p.name, "submitted")
		return nil
	default:
		p.metrics.ObserveBackground(p.name, "rejected_full")
		return fmt.Errorf("%w: %s", ErrPoolFull, name)
	}
}

// Close stops accepting tasks and waits for queued ones to finish or for ctx
// to expire, whichever comes first. Tasks still running when ctx expires see
// their context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
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
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.execute(t)
	}
}

func (p *Pool) execute(t task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.ObserveBackground(p.name, "panic")
			p.logger.Error("background task panicked", "task", t.name, "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	t.fn(ctx)
	p.metrics.ObserveBackground(p.name, "completed")
	p.logger.Debug("background task completed", "task", t.name, "elapsed_ms", time.Since(start).Milliseconds())
}
