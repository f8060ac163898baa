package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

// Processor executes a single attempt for a work item payload.
type Processor func(ctx context.Context, payload any) (any, error)

// QueueConfig configures admission limits.
type QueueConfig struct {
	MaxConcurrent int
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
}

// ConfigUpdate carries optional live adjustments; nil fields are left untouched.
type ConfigUpdate struct {
	MaxConcurrent *int
	Timeout       *time.Duration
	MaxAttempts   *int
	RetryDelay    *time.Duration
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	PendingCount  int           `json:"pending_count"`
	InFlightCount int           `json:"in_flight_count"`
	MaxConcurrent int           `json:"max_concurrent"`
	Timeout       time.Duration `json:"timeout"`
	MaxAttempts   int           `json:"max_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// Metrics receives queue instrumentation. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveQueueDepth(queue string, pending, inFlight int)
	ObserveQueueAttempt(queue, outcome string, duration time.Duration)
	ObserveQueueSettled(queue, outcome string, wait time.Duration)
}

// Option customises a Queue.
type Option func(*Queue)

// WithClock injects the time source used for enqueue stamps, timeouts and retry delays.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

type workItem struct {
	id        string
	priority  int
	enqueued  time.Time
	payload   any
	processor Processor
	handle    *Handle
}

// Queue is a priority-ordered admission queue bounding how many work items execute at once.
// A single dispatcher goroutine starts work; enqueue, cancel and completion only mutate state and signal it.
type Queue struct {
	name    string
	clock   clock.Clock
	logger  *zap.Logger
	metrics Metrics

	mu       sync.Mutex
	cfg      QueueConfig
	pending  []*workItem
	inFlight map[string]*workItem
	started  bool
	stopped  bool

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// NewQueue builds a queue. Non-positive limits fall back to defaults.
func NewQueue(name string, cfg QueueConfig, opts ...Option) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	q := &Queue{
		name:     name,
		clock:    clock.RealClock{},
		logger:   zap.NewNop(),
		cfg:      cfg,
		inFlight: make(map[string]*workItem),
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the dispatcher. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	go q.run()
	q.logger.Sugar().Infow("queue started", "queue", q.name, "max_concurrent", q.cfg.MaxConcurrent)
}

// Stop rejects pending work, cancels in-flight processors and waits for every item to settle.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.cancel()
	<-q.loopDone
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue submits a payload for processing and returns a handle that settles exactly once.
func (q *Queue) Enqueue(payload any, priority int, processor Processor) (*Handle, error) {
	if processor == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "processor is required")
	}

	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrQueueStopped, fmt.Sprintf("queue %s is not running", q.name))
	}
	id := uuid.NewString()
	item := &workItem{
		id:        id,
		priority:  priority,
		enqueued:  q.clock.Now(),
		payload:   payload,
		processor: processor,
		handle:    newHandle(id),
	}
	q.insert(item)
	pending, inFlight := len(q.pending), len(q.inFlight)
	q.mu.Unlock()

	q.observeDepth(pending, inFlight)
	q.signal()
	return item.handle, nil
}

// insert places item before the first entry with strictly lower priority, or equal priority
// and a later enqueue time. Callers must hold q.mu.
func (q *Queue) insert(item *workItem) {
	pos := len(q.pending)
	for i, existing := range q.pending {
		if existing.priority < item.priority ||
			(existing.priority == item.priority && existing.enqueued.After(item.enqueued)) {
			pos = i
			break
		}
	}
	q.pending = slices.Insert(q.pending, pos, item)
}

// Cancel removes an item that has not started yet. It returns false for in-flight, settled or unknown ids.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	idx := slices.IndexFunc(q.pending, func(item *workItem) bool { return item.id == id })
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	item := q.pending[idx]
	q.pending = slices.Delete(q.pending, idx, idx+1)
	pending, inFlight := len(q.pending), len(q.inFlight)
	q.mu.Unlock()

	item.handle.settle(nil, appErrors.WithDetails(appErrors.ErrCanceled, map[string]any{"item_id": id}))
	q.observeDepth(pending, inFlight)
	q.observeSettled(item, "canceled")
	return true
}

// Configure live-adjusts limits for work started after the call and returns the resulting config.
func (q *Queue) Configure(update ConfigUpdate) QueueConfig {
	q.mu.Lock()
	if update.MaxConcurrent != nil && *update.MaxConcurrent >= 1 {
		q.cfg.MaxConcurrent = *update.MaxConcurrent
	}
	if update.Timeout != nil && *update.Timeout > 0 {
		q.cfg.Timeout = *update.Timeout
	}
	if update.MaxAttempts != nil && *update.MaxAttempts >= 1 {
		q.cfg.MaxAttempts = *update.MaxAttempts
	}
	if update.RetryDelay != nil && *update.RetryDelay >= 0 {
		q.cfg.RetryDelay = *update.RetryDelay
	}
	cfg := q.cfg
	q.mu.Unlock()

	q.logger.Sugar().Infow("queue reconfigured", "queue", q.name, "max_concurrent", cfg.MaxConcurrent,
		"timeout", cfg.Timeout, "max_attempts", cfg.MaxAttempts, "retry_delay", cfg.RetryDelay)
	q.signal()
	return cfg
}

// Stats returns a snapshot that may be momentarily stale.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		PendingCount:  len(q.pending),
		InFlightCount: len(q.inFlight),
		MaxConcurrent: q.cfg.MaxConcurrent,
		Timeout:       q.cfg.Timeout,
		MaxAttempts:   q.cfg.MaxAttempts,
		RetryDelay:    q.cfg.RetryDelay,
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.loopDone)
	for {
		select {
		case <-q.ctx.Done():
			q.rejectPending()
			return
		case <-q.wake:
			q.dispatch()
		}
	}
}

// dispatch is only invoked from the run goroutine, so inFlight never exceeds MaxConcurrent.
func (q *Queue) dispatch() {
	q.mu.Lock()
	var started []*workItem
	for len(q.pending) > 0 && len(q.inFlight) < q.cfg.MaxConcurrent {
		item := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.inFlight[item.id] = item
		started = append(started, item)
	}
	cfg := q.cfg
	pending, inFlight := len(q.pending), len(q.inFlight)
	q.mu.Unlock()

	if len(started) == 0 {
		return
	}
	q.observeDepth(pending, inFlight)
	for _, item := range started {
		q.wg.Add(1)
		go q.execute(item, cfg)
	}
}

func (q *Queue) rejectPending() {
	q.mu.Lock()
	q.stopped = true
	rejected := q.pending
	q.pending = nil
	inFlight := len(q.inFlight)
	q.mu.Unlock()

	for _, item := range rejected {
		item.handle.settle(nil, appErrors.WithDetails(appErrors.ErrQueueStopped, map[string]any{"item_id": item.id}))
		q.observeSettled(item, "stopped")
	}
	if len(rejected) > 0 {
		q.logger.Sugar().Warnw("queue stopping with pending work", "queue", q.name, "rejected", len(rejected))
	}
	q.observeDepth(0, inFlight)
}

func (q *Queue) execute(item *workItem, cfg QueueConfig) {
	defer q.wg.Done()

	var lastErr error
	attempts := 0
	for attempts < cfg.MaxAttempts {
		attempts++
		value, err := q.attempt(item, cfg.Timeout)
		if err == nil {
			q.finish(item, value, nil, "fulfilled")
			return
		}
		lastErr = err
		if q.ctx.Err() != nil {
			break
		}
		if attempts < cfg.MaxAttempts {
			q.logger.Sugar().Warnw("work item failed, retrying", "queue", q.name, "item_id", item.id,
				"attempt", attempts, "error", err)
			if !q.sleep(cfg.RetryDelay) {
				break
			}
		}
	}

	q.logger.Sugar().Errorw("work item exhausted retries", "queue", q.name, "item_id", item.id,
		"attempts", attempts, "error", lastErr)
	failure := appErrors.Wrap(lastErr, appErrors.ErrProcessingFailed.Code, appErrors.ErrProcessingFailed.Status, appErrors.ErrProcessingFailed.Message)
	q.finish(item, nil, appErrors.WithDetails(failure, map[string]any{
		"item_id":  item.id,
		"attempts": attempts,
	}), "failed")
}

type attemptResult struct {
	value any
	err   error
}

// attempt races one processor call against a fresh timeout window.
func (q *Queue) attempt(item *workItem, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithCancel(q.ctx)
	defer cancel()

	start := q.clock.Now()
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("processor panic: %v", r)}
			}
		}()
		value, err := item.processor(ctx, item.payload)
		done <- attemptResult{value: value, err: err}
	}()

	timer := q.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err == nil {
			q.observeAttempt("success", q.clock.Since(start))
			return res.value, nil
		}
		if q.ctx.Err() != nil {
			return nil, q.stoppedError(start)
		}
		q.observeAttempt("error", q.clock.Since(start))
		return nil, res.err
	case <-timer.C():
		q.observeAttempt("timeout", q.clock.Since(start))
		return nil, appErrors.WithDetails(appErrors.ErrProcessingTimeout, map[string]any{"timeout": timeout.String()})
	case <-q.ctx.Done():
		return nil, q.stoppedError(start)
	}
}

func (q *Queue) stoppedError(start time.Time) error {
	q.observeAttempt("stopped", q.clock.Since(start))
	return appErrors.Wrap(q.ctx.Err(), appErrors.ErrQueueStopped.Code, appErrors.ErrQueueStopped.Status, appErrors.ErrQueueStopped.Message)
}

func (q *Queue) sleep(d time.Duration) bool {
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	timer := q.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *Queue) finish(item *workItem, value any, err error, outcome string) {
	q.mu.Lock()
	delete(q.inFlight, item.id)
	pending, inFlight := len(q.pending), len(q.inFlight)
	q.mu.Unlock()

	item.handle.settle(value, err)
	q.observeDepth(pending, inFlight)
	q.observeSettled(item, outcome)
	q.signal()
}

func (q *Queue) observeDepth(pending, inFlight int) {
	if q.metrics != nil {
		q.metrics.ObserveQueueDepth(q.name, pending, inFlight)
	}
}

func (q *Queue) observeAttempt(outcome string, d time.Duration) {
	if q.metrics != nil {
		q.metrics.ObserveQueueAttempt(q.name, outcome, d)
	}
}

func (q *Queue) observeSettled(item *workItem, outcome string) {
	if q.metrics != nil {
		q.metrics.ObserveQueueSettled(q.name, outcome, q.clock.Since(item.enqueued))
	}
}
