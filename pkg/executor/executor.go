// Package executor is a fixed-size worker pool fronted by a bounded
// task queue, the shape the teacher's goroutine-per-job concurrent
// access example runs ad hoc in a test program, generalized here into
// a reusable type: a fixed number of workers pull jobs off one
// channel and run them against a shared Connection, retrying a busy
// single-writer slot with bounded exponential backoff instead of
// letting the caller block on it directly.
package executor

import (
	"context"
	"math/rand"
	"time"

	ashdberrors "github.com/ashlang/ashdb/pkg/errors"
	"github.com/ashlang/ashdb/pkg/vm"
)

const defaultQueueSize = 1000
const defaultMaxRetries = 5

// Options configures an Executor.
type Options struct {
	Workers     int
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		Workers:     4,
		QueueSize:   defaultQueueSize,
		MaxRetries:  defaultMaxRetries,
		BaseBackoff: 2 * time.Millisecond,
	}
}

// task is one unit of work submitted to the pool: run against a
// Connection and report back on done.
type task struct {
	ctx  context.Context
	run  func() (interface{}, error)
	done chan result
}

type result struct {
	value interface{}
	err   error
}

// Executor runs submitted work on a fixed pool of goroutines, queuing
// overflow on a bounded channel and retrying operations that fail with
// a Busy error (another write transaction holding the engine's
// single-writer slot) instead of surfacing the contention to the
// caller immediately.
type Executor struct {
	opts  Options
	tasks chan task
	done  chan struct{}
}

// New starts opts.Workers goroutines draining a queue of depth
// opts.QueueSize. Call Stop to shut the pool down.
func New(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultOptions().BaseBackoff
	}
	e := &Executor{opts: opts, tasks: make(chan task, opts.QueueSize), done: make(chan struct{})}
	for i := 0; i < opts.Workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	for {
		select {
		case <-e.done:
			return
		case t := <-e.tasks:
			v, err := e.runWithRetry(t.ctx, t.run)
			t.done <- result{value: v, err: err}
		}
	}
}

// runWithRetry retries fn while it fails with a Busy error, using
// exponential backoff with jitter, for at most opts.MaxRetries retries
// after the first attempt.
func (e *Executor) runWithRetry(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !isBusy(err) {
			return nil, err
		}
		if attempt == e.opts.MaxRetries {
			break
		}
		backoff := e.opts.BaseBackoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return nil, lastErr
}

func isBusy(err error) bool {
	return ashdberrors.Is(err, ashdberrors.KindBusy)
}

// submit blocks only until fn is enqueued (or ctx is cancelled first),
// then returns a channel that receives the worker's result (after
// retries) or ctx's error, whichever comes first.
func (e *Executor) submit(ctx context.Context, fn func() (interface{}, error)) <-chan result {
	out := make(chan result, 1)
	t := task{ctx: ctx, run: fn, done: make(chan result, 1)}
	select {
	case e.tasks <- t:
	case <-ctx.Done():
		out <- result{err: ctx.Err()}
		return out
	}
	go func() {
		select {
		case r := <-t.done:
			out <- r
		case <-ctx.Done():
			out <- result{err: ctx.Err()}
		}
	}()
	return out
}

// Conn is the minimal connection surface Submit/SubmitTx need — the
// subset of *pkg/conn.Connection this package depends on, kept as an
// interface so tests can exercise the pool without a real storage
// Engine underneath.
type Conn interface {
	Execute(sql string) (vm.Result, error)
}

// Submit runs one SQL statement on conn and returns its Result
// synchronously, retrying on Busy.
func (e *Executor) Submit(ctx context.Context, c Conn, sql string) (vm.Result, error) {
	r := <-e.submit(ctx, func() (interface{}, error) { return c.Execute(sql) })
	if r.err != nil {
		return vm.Result{}, r.err
	}
	return r.value.(vm.Result), nil
}

// SubmitAsync is Submit without blocking the caller: the Result (or
// error, encoded as a zero Result) arrives on the returned channel.
func (e *Executor) SubmitAsync(ctx context.Context, c Conn, sql string) <-chan vm.Result {
	out := make(chan vm.Result, 1)
	go func() {
		res, _ := e.Submit(ctx, c, sql)
		out <- res
	}()
	return out
}

// SubmitBatch runs stmts in order against conn and returns every
// Result once all of them have completed (or the first error aborts
// the batch).
func (e *Executor) SubmitBatch(ctx context.Context, c Conn, stmts []string) <-chan []vm.Result {
	out := make(chan []vm.Result, 1)
	go func() {
		results := make([]vm.Result, 0, len(stmts))
		for _, sql := range stmts {
			res, err := e.Submit(ctx, c, sql)
			if err != nil {
				out <- results
				return
			}
			results = append(results, res)
		}
		out <- results
	}()
	return out
}

// SubmitTx runs fn against conn wrapped in BEGIN/COMMIT, rolling back
// on any error fn returns (including one from the statements it
// issues through conn itself). The whole sequence is retried as one
// unit if the initial BEGIN hits Busy.
func (e *Executor) SubmitTx(ctx context.Context, c Conn, fn func(Conn) error) <-chan error {
	out := make(chan error, 1)
	r := e.submit(ctx, func() (interface{}, error) {
		if _, err := c.Execute("BEGIN"); err != nil {
			return nil, err
		}
		if err := fn(c); err != nil {
			_, _ = c.Execute("ROLLBACK")
			return nil, err
		}
		if _, err := c.Execute("COMMIT"); err != nil {
			return nil, err
		}
		return nil, nil
	})
	go func() {
		res := <-r
		out <- res.err
	}()
	return out
}

// Stop signals every worker to exit. Queued-but-unstarted tasks are
// dropped; in-flight tasks still run to completion.
func (e *Executor) Stop() { close(e.done) }
