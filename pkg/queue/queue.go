// Package queue is an in-process, at-least-once job queue with bounded
// retries and exponential backoff. Each order has at most one job in the
// queue, and that job is held by at most one worker at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var (
	ErrDuplicateJob = errors.New("job already queued for order")
	ErrQueueFull    = errors.New("queue full")
	ErrClosed       = errors.New("queue closed")
)

// Entry is the journaled form of a job.
type Entry struct {
	Job      order.Job `json:"job"`
	Attempts int       `json:"attempts"`
}

// Journal persists queued jobs so they survive a restart.
type Journal interface {
	SaveJob(ctx context.Context, e Entry) error
	DeleteJob(ctx context.Context, orderID string) error
	LoadJobs(ctx context.Context) ([]Entry, error)
}

// Delivery is one attempt at a job.
type Delivery struct {
	Job         order.Job
	Attempt     int // 1-based
	MaxAttempts int
}

// Handler consumes deliveries.
type Handler interface {
	// Process runs one attempt. A non-nil error schedules a retry, or
	// exhausts the job when no attempts remain.
	Process(ctx context.Context, d Delivery) error

	// Exhausted is called after the final failed attempt. It may be called
	// more than once for the same job (after a restart) and must be idempotent.
	Exhausted(ctx context.Context, d Delivery, cause error)
}

// Options configures a Queue.
type Options struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Capacity    int
	Clock       util.Clock
}

func DefaultOptions() Options {
	return Options{
		Workers:     10,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		Capacity:    1024,
		Clock:       util.RealClock{},
	}
}

type jobState int

const (
	stateReady jobState = iota
	stateInFlight
	stateDelayed
)

type entry struct {
	job      order.Job
	attempts int
	state    jobState
	lastErr  error
}

type Queue struct {
	opts    Options
	journal Journal
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	jobs   map[string]*entry
	closed bool

	ready   chan *entry
	backlog []*entry // replayed jobs that did not fit in ready
	timers  sync.WaitGroup
}

// New creates a Queue. journal may be nil for a purely in-memory queue.
func New(opts Options, journal Journal, logger *zap.SugaredLogger) *Queue {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BackoffBase < 0 {
		opts.BackoffBase = 0
	}
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &Queue{
		opts:    opts,
		journal: journal,
		logger:  util.OrNop(logger),
		jobs:    make(map[string]*entry),
		ready:   make(chan *entry, opts.Capacity),
	}
}

// Options returns the effective configuration.
func (q *Queue) Options() Options { return q.opts }

// Enqueue validates, journals and queues job for immediate delivery.
func (q *Queue) Enqueue(ctx context.Context, job order.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	e := &entry{job: job, state: stateReady}
	if err := q.admit(e); err != nil {
		return err
	}
	if err := q.journal.SaveJob(ctx, Entry{Job: job}); err != nil {
		q.forget(job.OrderID)
		return fmt.Errorf("journal job %s: %w", job.OrderID, err)
	}
	select {
	case q.ready <- e:
	default:
		q.forget(job.OrderID)
		q.dropJournal(ctx, job.OrderID)
		return ErrQueueFull
	}
	q.logger.Debugw("job_enqueued", "order_id", job.OrderID)
	return nil
}

// Replay re-queues every journaled job, keeping its attempt count.
// Jobs beyond Options.Capacity wait in a backlog that Run drains.
// Call it before Run.
func (q *Queue) Replay(ctx context.Context) (int, error) {
	entries, err := q.journal.LoadJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	n := 0
	for _, je := range entries {
		if err := je.Job.Validate(); err != nil {
			q.logger.Warnw("job_replay_skipped", "order_id", je.Job.OrderID, "err", err)
			q.dropJournal(ctx, je.Job.OrderID)
			continue
		}
		e := &entry{job: je.Job, attempts: je.Attempts, state: stateReady}
		if err := q.admit(e); err != nil {
			continue
		}
		select {
		case q.ready <- e:
		default:
			q.mu.Lock()
			q.backlog = append(q.backlog, e)
			q.mu.Unlock()
		}
		n++
	}
	if n > 0 {
		q.logger.Infow("jobs_replayed", "count", n)
	}
	return n, nil
}

// Run delivers jobs to h from Options.Workers goroutines until ctx ends.
// It returns once every worker and pending retry timer has stopped.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	var workers sync.WaitGroup
	for i := 0; i < q.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-q.ready:
					q.deliver(ctx, h, e)
				}
			}
		}()
	}

	q.mu.Lock()
	backlog := q.backlog
	q.backlog = nil
	q.mu.Unlock()
	if len(backlog) > 0 {
		q.timers.Add(1)
		go q.feed(ctx, backlog)
	}

	workers.Wait()
	q.timers.Wait()
	return ctx.Err()
}

// feed hands the replay backlog to the workers as the ready buffer frees up.
func (q *Queue) feed(ctx context.Context, backlog []*entry) {
	defer q.timers.Done()
	for i, e := range backlog {
		select {
		case q.ready <- e:
		case <-ctx.Done():
			for _, rest := range backlog[i:] {
				q.forget(rest.job.OrderID)
			}
			return
		}
	}
}

// Close stops accepting new jobs. Jobs already queued stay journaled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len returns the number of jobs ready, delayed or in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Active reports whether a worker currently holds the job for orderID.
func (q *Queue) Active(orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[orderID]
	return ok && e.state == stateInFlight
}

// Pending reports whether a job for orderID is anywhere in the queue.
func (q *Queue) Pending(orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[orderID]
	return ok
}

func (q *Queue) admit(e *entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.jobs[e.job.OrderID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, e.job.OrderID)
	}
	q.jobs[e.job.OrderID] = e
	return nil
}

func (q *Queue) forget(orderID string) {
	q.mu.Lock()
	delete(q.jobs, orderID)
	q.mu.Unlock()
}

func (q *Queue) setState(e *entry, s jobState) {
	q.mu.Lock()
	e.state = s
	q.mu.Unlock()
}

func (q *Queue) deliver(ctx context.Context, h Handler, e *entry) {
	max := q.opts.MaxAttempts
	id := e.job.OrderID

	// Journaled as exhausted before a restart: finish the exhaustion only.
	if e.attempts >= max {
		q.exhaust(ctx, h, e, e.lastErr)
		return
	}

	q.setState(e, stateInFlight)
	d := Delivery{Job: e.job, Attempt: e.attempts + 1, MaxAttempts: max}
	err := h.Process(ctx, d)
	if err == nil {
		q.dropJournal(ctx, id)
		q.forget(id)
		return
	}

	if ctx.Err() != nil {
		// Shutting down: leave the journal entry for Replay.
		q.forget(id)
		q.logger.Infow("job_interrupted", "order_id", id, "attempt", d.Attempt)
		return
	}

	e.attempts = d.Attempt
	e.lastErr = err
	if jerr := q.journal.SaveJob(ctx, Entry{Job: e.job, Attempts: e.attempts}); jerr != nil {
		q.logger.Warnw("journal_save_failed", "order_id", id, "err", jerr)
	}

	if e.attempts >= max {
		q.exhaust(ctx, h, e, err)
		return
	}

	delay := Backoff(q.opts.BackoffBase, q.opts.BackoffMax, e.attempts)
	q.logger.Warnw("job_attempt_failed",
		"order_id", id,
		"attempt", e.attempts,
		"max_attempts", max,
		"retry_in", delay,
		"err", err)

	q.setState(e, stateDelayed)
	q.timers.Add(1)
	go func() {
		defer q.timers.Done()
		select {
		case <-ctx.Done():
			q.forget(id)
			return
		case <-q.opts.Clock.After(delay):
		}
		q.setState(e, stateReady)
		select {
		case q.ready <- e:
		case <-ctx.Done():
			q.forget(id)
		}
	}()
}

func (q *Queue) exhaust(ctx context.Context, h Handler, e *entry, cause error) {
	id := e.job.OrderID
	if cause == nil {
		cause = errors.New("retries exhausted")
	}
	q.logger.Errorw("job_exhausted", "order_id", id, "attempts", e.attempts, "err", cause)
	h.Exhausted(ctx, Delivery{Job: e.job, Attempt: e.attempts, MaxAttempts: q.opts.MaxAttempts}, cause)
	q.dropJournal(ctx, id)
	q.forget(id)
}

func (q *Queue) dropJournal(ctx context.Context, orderID string) {
	if err := q.journal.DeleteJob(ctx, orderID); err != nil {
		q.logger.Warnw("journal_delete_failed", "order_id", orderID, "err", err)
	}
}

type nopJournal struct{}

func (nopJournal) SaveJob(context.Context, Entry) error { return nil }

func (nopJournal) DeleteJob(context.Context, string) error { return nil }

func (nopJournal) LoadJobs(context.Context) ([]Entry, error) { return nil, nil }
