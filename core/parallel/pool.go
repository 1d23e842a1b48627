package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Status is the final state of a pooled task.
type Status int

const (
	// StatusPending means the task was never executed (dispatch stopped first).
	StatusPending Status = iota
	// StatusDone means the task returned without error.
	StatusDone
	// StatusFailed means the task returned an error or panicked.
	StatusFailed
	// StatusTimedOut means the task overran the pool's per-task timeout and was abandoned.
	StatusTimedOut
	// StatusCanceled means the task returned an error after the run was cancelled.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of one task. Outcomes are indexed like the tasks.
type Outcome[T any] struct {
	Index   int
	Worker  int
	Value   T
	Err     error
	Status  Status
	Elapsed time.Duration
}

// Event is passed to the pool observer after each executed task.
type Event struct {
	Worker  int
	Index   int
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Pool runs tasks on a fixed number of workers fed from an unbuffered queue.
//
// Workers are torn down before Run returns, but a task abandoned by the
// per-task timeout is not: its goroutine keeps running until fn returns, and
// only its context is cancelled. fn should honour ctx to stop promptly.
type Pool struct {
	workers  int
	timeout  time.Duration
	observer func(Event)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of workers. Values below 1 mean runtime.NumCPU().
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n >= 1 {
			p.workers = n
		}
	}
}

// WithTimeout bounds each task. Zero disables the bound.
func WithTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// WithObserver registers fn to be called from worker goroutines after every
// executed task. fn must be safe for concurrent use.
func WithObserver(fn func(Event)) PoolOption {
	return func(p *Pool) { p.observer = fn }
}

// NewPool creates a Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Run executes fn(ctx, i) for i in [0, n) and returns one Outcome per task.
//
// Cancelling ctx stops dispatch; a worker that receives a task after
// cancellation leaves it StatusPending. Tasks already running see the cancelled
// context and their outcomes are kept. A task exceeding the per-task timeout is
// abandoned: its goroutine may finish later but its result is discarded.
// Run returns after every worker has exited.
func Run[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) (T, error)) []Outcome[T] {
	outcomes := make([]Outcome[T], n)
	for i := range outcomes {
		outcomes[i].Index = i
		outcomes[i].Worker = -1
	}
	if n == 0 {
		return outcomes
	}

	workers := p.workers
	if workers > n {
		workers = n
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = execute(ctx, p, worker, i, fn)
				if p.observer != nil {
					o := outcomes[i]
					p.observer(Event{Worker: worker, Index: i, Status: o.Status, Err: o.Err, Elapsed: o.Elapsed})
				}
			}
		}(w)
	}

dispatch:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()
	return outcomes
}

func execute[T any](ctx context.Context, p *Pool, worker, i int, fn func(ctx context.Context, i int) (T, error)) Outcome[T] {
	type result struct {
		v   T
		err error
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var deadline <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := errors.SafeCall(fmt.Sprintf("task %d", i), func() (T, error) {
			return fn(taskCtx, i)
		})
		done <- result{v: v, err: err}
	}()

	out := Outcome[T]{Index: i, Worker: worker}
	select {
	case r := <-done:
		out.Value, out.Err = r.v, r.err
		switch {
		case r.err == nil:
			out.Status = StatusDone
		case ctx.Err() != nil:
			out.Status = StatusCanceled
		default:
			out.Status = StatusFailed
		}
	case <-deadline:
		out.Status = StatusTimedOut
		out.Err = errors.Wrapf(context.DeadlineExceeded, "task %d exceeded %s", i, p.timeout)
	}
	out.Elapsed = time.Since(start)
	return out
}
