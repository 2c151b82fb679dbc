package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sitewright/cloudcode/pkg/observability"
)

// Task is one unit of background work.
type Task struct {
	Name string
	Fn   func(context.Context) error
}

// Pool runs fire-and-forget tasks on a fixed number of workers. Task
// failures are logged and reported through the error hook; they are
// never surfaced to the submitter.
type Pool struct {
	workers int
	timeout time.Duration
	logger  *observability.Logger
	onError func(taskName string)

	workCh   chan Task
	pending  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}

	// mu orders Submit against the channel close in Shutdown: a
	// submitter holds the read lock for the whole send, so Shutdown
	// cannot close workCh under it.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates and starts a worker pool. onError may be nil.
func NewPool(ctx context.Context, workers int, timeout time.Duration, logger *observability.Logger, onError func(taskName string)) *Pool {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers: workers,
		timeout: timeout,
		logger:  logger,
		onError: onError,
		workCh:  make(chan Task, workers*4),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.worker()
			}()
		}
		wg.Wait()
		close(p.done)
	}()

	return p
}

// Submit queues a task. Returns an error only when the pool is shut
// down; a queued task's own failure is never returned.
func (p *Pool) Submit(name string, fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("pool shut down, dropped task %s", name)
	}

	p.pending.Add(1)
	select {
	case p.workCh <- Task{Name: name, Fn: fn}:
		return nil
	case <-p.ctx.Done():
		p.pending.Done()
		return fmt.Errorf("pool shut down, dropped task %s", name)
	}
}

// Drain blocks until every submitted task has finished.
func (p *Pool) Drain() {
	p.pending.Wait()
}

// Shutdown drains outstanding tasks and stops the workers, waiting at
// most timeout.
func (p *Pool) Shutdown(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		finished := make(chan struct{})
		go func() {
			p.pending.Wait()
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(timeout):
			err = fmt.Errorf("pool shutdown timed out after %v", timeout)
		}

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		close(p.workCh)
		<-p.done
	})
	return err
}

func (p *Pool) worker() {
	for task := range p.workCh {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer p.pending.Done()

	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.fail(task.Name, fmt.Errorf("panic: %v", r))
			p.logger.WithField("task", task.Name).
				WithField("stack", string(debug.Stack())).
				Error("panic in background task")
		}
	}()

	if err := task.Fn(ctx); err != nil {
		p.fail(task.Name, err)
	}
}

func (p *Pool) fail(name string, err error) {
	if p.onError != nil {
		p.onError(name)
	}
	p.logger.WithError(err).WithField("task", name).Warn("background task failed")
}

// SafeGo executes a function in a goroutine with panic recovery, a
// timeout and error logging. Use for one-off detached work that does
// not belong to a pool.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithField("task", taskName).
					WithField("stack", string(debug.Stack())).
					Error("panic in detached task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("detached task failed")
		}
	}()
}
