package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

func newStartedQueue(t *testing.T, cfg QueueConfig, opts ...Option) *Queue {
	t.Helper()
	q := NewQueue("test", cfg, opts...)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

type startRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *startRecorder) processor(label string) Processor {
	return func(ctx context.Context, payload any) (any, error) {
		r.mu.Lock()
		r.order = append(r.order, label)
		r.mu.Unlock()
		return label, nil
	}
}

func (r *startRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func blockUntil(gate <-chan struct{}) Processor {
	return func(ctx context.Context, payload any) (any, error) {
		select {
		case <-gate:
			return "released", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func waitInFlight(t *testing.T, q *Queue, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return q.Stats().InFlightCount == n }, time.Second, time.Millisecond)
}

func TestQueueStartsByPriorityThenEnqueueOrder(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 1})
	gate := make(chan struct{})
	blocker, err := q.Enqueue(nil, 0, blockUntil(gate))
	require.NoError(t, err)
	waitInFlight(t, q, 1)

	rec := &startRecorder{}
	items := []struct {
		label    string
		priority int
	}{
		{"low-a", 1}, {"high-a", 3}, {"mid", 2}, {"high-b", 3}, {"low-b", 1}, {"high-c", 3},
	}
	handles := make([]*Handle, 0, len(items))
	for _, item := range items {
		h, err := q.Enqueue(item.label, item.priority, rec.processor(item.label))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, len(items), q.Stats().PendingCount)

	close(gate)
	_, err = blocker.Wait(context.Background())
	require.NoError(t, err)
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"high-a", "high-b", "high-c", "mid", "low-a", "low-b"}, rec.snapshot())
}

func TestQueueNeverExceedsMaxConcurrent(t *testing.T) {
	for _, limit := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			q := newStartedQueue(t, QueueConfig{MaxConcurrent: limit, Timeout: time.Second, MaxAttempts: 1})

			var current, peak int32
			proc := func(ctx context.Context, payload any) (any, error) {
				now := atomic.AddInt32(&current, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return payload, nil
			}

			handles := make([]*Handle, 0, 40)
			for i := 0; i < 40; i++ {
				h, err := q.Enqueue(i, i%4, proc)
				require.NoError(t, err)
				handles = append(handles, h)
				assert.LessOrEqual(t, q.Stats().InFlightCount, limit)
			}
			for _, h := range handles {
				_, err := h.Wait(context.Background())
				require.NoError(t, err)
			}

			assert.LessOrEqual(t, int(atomic.LoadInt32(&peak)), limit)
			stats := q.Stats()
			assert.Zero(t, stats.PendingCount)
			assert.Zero(t, stats.InFlightCount)
		})
	}
}

func TestQueueSettlesEveryItemExactlyOnce(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 4, Timeout: 50 * time.Millisecond, MaxAttempts: 2, RetryDelay: time.Millisecond})

	var fulfilled, failed int32
	handles := make([]*Handle, 0, 30)
	for i := 0; i < 30; i++ {
		i := i
		h, err := q.Enqueue(i, 0, func(ctx context.Context, payload any) (any, error) {
			switch i % 3 {
			case 0:
				return payload, nil
			case 1:
				return nil, errors.New("backend unavailable")
			default:
				<-ctx.Done()
				return nil, ctx.Err()
			}
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		_, err := h.Wait(context.Background())
		if err != nil {
			assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
			atomic.AddInt32(&failed, 1)
			continue
		}
		atomic.AddInt32(&fulfilled, 1)
		assert.False(t, h.settle("late", nil), "handle must not settle twice")
	}

	assert.Equal(t, int32(10), fulfilled)
	assert.Equal(t, int32(20), failed)
}

func TestQueueRetryExhaustion(t *testing.T) {
	const retryDelay = 20 * time.Millisecond
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 3, RetryDelay: retryDelay})

	var mu sync.Mutex
	var attempts []time.Time
	cause := errors.New("registrar rejected request")
	h, err := q.Enqueue("payload", 0, func(ctx context.Context, payload any) (any, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return nil, cause
	})
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
	assert.ErrorIs(t, err, cause)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 3, appErr.Details["attempts"])
	assert.Equal(t, h.ID(), appErr.Details["item_id"])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 3)
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), retryDelay)
	}
}

func TestQueueRetriesTransparentlyUntilSuccess(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 2, Timeout: time.Second, MaxAttempts: 3, RetryDelay: time.Millisecond})

	var calls int32
	h, err := q.Enqueue("seat-1", 5, func(ctx context.Context, payload any) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return "enrolled", nil
	})
	require.NoError(t, err)

	value, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "enrolled", value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueTimeoutUsesInjectedClockAndFreshWindowPerAttempt(t *testing.T) {
	fake := testclock.NewFakeClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: 10 * time.Second, MaxAttempts: 2}, WithClock(fake))

	var attempts int32
	h, err := q.Enqueue(nil, 0, func(ctx context.Context, payload any) (any, error) {
		atomic.AddInt32(&attempts, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 1 && fake.HasWaiters() }, time.Second, time.Millisecond)
	fake.Step(9 * time.Second)
	select {
	case <-h.Done():
		t.Fatal("item settled before its timeout elapsed")
	case <-time.After(20 * time.Millisecond):
	}
	fake.Step(time.Second)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 2 && fake.HasWaiters() }, time.Second, time.Millisecond)
	fake.Step(10 * time.Second)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingTimeout))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestQueueCancelOnlyAffectsPendingItems(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 1})
	gate := make(chan struct{})
	blocker, err := q.Enqueue(nil, 0, blockUntil(gate))
	require.NoError(t, err)
	waitInFlight(t, q, 1)

	var ran int32
	pending, err := q.Enqueue(nil, 10, func(ctx context.Context, payload any) (any, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	})
	require.NoError(t, err)

	assert.True(t, q.Cancel(pending.ID()))
	assert.False(t, q.Cancel(pending.ID()))
	assert.False(t, q.Cancel(blocker.ID()))
	assert.False(t, q.Cancel("unknown"))

	_, err = pending.Wait(context.Background())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCanceled))

	close(gate)
	_, err = blocker.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&ran))
	assert.Zero(t, q.Stats().PendingCount)
}

func TestQueueConfigureRaisesConcurrencyForWaitingWork(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 1})
	gate := make(chan struct{})
	defer close(gate)

	_, err := q.Enqueue(nil, 0, blockUntil(gate))
	require.NoError(t, err)
	_, err = q.Enqueue(nil, 0, blockUntil(gate))
	require.NoError(t, err)
	waitInFlight(t, q, 1)
	assert.Equal(t, 1, q.Stats().PendingCount)

	two := 2
	zero := 0
	cfg := q.Configure(ConfigUpdate{MaxConcurrent: &two, MaxAttempts: &zero})
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, 1, cfg.MaxAttempts, "invalid values are ignored")

	waitInFlight(t, q, 2)
	assert.Zero(t, q.Stats().PendingCount)
}

func TestQueueStopRejectsPendingWork(t *testing.T) {
	q := NewQueue("stopping", QueueConfig{MaxConcurrent: 1, Timeout: time.Minute, MaxAttempts: 3, RetryDelay: time.Minute})
	_, err := q.Enqueue(nil, 0, blockUntil(nil))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueStopped), "enqueue before start is rejected")

	q.Start(context.Background())
	running, err := q.Enqueue(nil, 0, blockUntil(nil))
	require.NoError(t, err)
	waitInFlight(t, q, 1)
	waiting, err := q.Enqueue(nil, 0, blockUntil(nil))
	require.NoError(t, err)

	q.Stop()

	_, err = waiting.Wait(context.Background())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueStopped))
	_, err = running.Wait(context.Background())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueStopped))

	_, err = q.Enqueue(nil, 0, blockUntil(nil))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueStopped))
}

func TestQueueRecoversProcessorPanic(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 1})
	h, err := q.Enqueue(nil, 0, func(ctx context.Context, payload any) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor panic: boom")
}

func TestDoReturnsTypedResult(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 2, Timeout: time.Second, MaxAttempts: 1})

	got, err := Do(context.Background(), q, "IF2101", 0, func(ctx context.Context, course string) ([]string, error) {
		return []string{course + "-A", course + "-B"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"IF2101-A", "IF2101-B"}, got)

	_, err = Do(context.Background(), q, 1, 0, func(ctx context.Context, n int) (int, error) {
		return 0, errors.New("nope")
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrProcessingFailed))
}

func TestHandleWaitHonoursCallerContext(t *testing.T) {
	q := newStartedQueue(t, QueueConfig{MaxConcurrent: 1, Timeout: time.Second, MaxAttempts: 1})
	gate := make(chan struct{})
	h, err := q.Enqueue(nil, 0, blockUntil(gate))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	value, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "released", value)
}
