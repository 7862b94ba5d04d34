// Package worker runs queued jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/okian/somurie/internal/adapters/mq/queue"
	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Handler runs one dequeued item.
type Handler interface {
	Handle(ctx context.Context, it queue.Item) error
}

// PanicHandler is implemented by handlers that need to settle an item whose
// Handle panicked.
type PanicHandler interface {
	HandlePanic(ctx context.Context, it queue.Item, err error)
}

// Queue defines how workers receive items.
type Queue interface {
	Pop(ctx context.Context) (queue.Item, error)
}

// PanicError carries a recovered panic value and its stack.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Worker processes items until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current item.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker pulls from a Queue and hands items to a Handler.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	// Shutdown control
	shutdown chan struct{}
	once     sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	cfg := newConfig(opts)
	return &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     cfg.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   cfg.log.Named(cfg.name),
	}
}

// Run starts the worker loop. In-flight items run on ctx; shutdown only
// stops further pops.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	popCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-popCtx.Done():
		}
	}()

	for {
		it, err := w.queue.Pop(popCtx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && popCtx.Err() == nil {
				w.logger.Error(ctx, "dequeue failed", logger.Error(err))
			}
			return
		}
		if err := w.process(ctx, it); err != nil {
			w.logger.Warn(ctx, "item failed", logger.String("job_id", it.ID), logger.Error(err))
		}
	}
}

// process runs the handler, converting a panic into an error.
func (w *InMemoryWorker) process(ctx context.Context, it queue.Item) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		perr := &PanicError{Value: r, Stack: debug.Stack()}
		metrics.RecordWorkerPanic()
		metrics.RecordErrorByComponent("worker", "panic")
		w.logger.Error(ctx, "handler panicked",
			logger.String("job_id", it.ID),
			logger.Any("panic", r),
			logger.String("stack", string(perr.Stack)),
		)
		if ph, ok := w.handler.(PanicHandler); ok {
			ph.HandlePanic(ctx, it, perr)
		}
		err = perr
	}()
	return w.handler.Handle(ctx, it)
}

// Shutdown stops the worker after its current item.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	cfg := newConfig(opts)

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  cfg.log.Named(cfg.name + "-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, h,
			WithLogger(cfg.log),
			WithName(cfg.name+"-"+strconv.Itoa(i)),
		)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Shutdown closes the queue and waits for every worker to finish its
// current item.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerCount(0)
	return errors.Join(errs...)
}
