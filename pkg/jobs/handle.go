package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Handle is the caller's view of an enqueued work item.
type Handle struct {
	id    string
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// ID returns the work item identifier, usable with Queue.Cancel.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed once the item settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the settled outcome. It must only be called after Done is closed.
func (h *Handle) Result() (any, error) {
	<-h.done
	return h.value, h.err
}

// Wait blocks until the item settles or ctx ends. Abandoning the wait does not cancel the item.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) settle(value any, err error) bool {
	settled := false
	h.once.Do(func() {
		h.value = value
		h.err = err
		close(h.done)
		settled = true
	})
	return settled
}

// Do enqueues fn for payload and waits for its typed result.
func Do[T, R any](ctx context.Context, q *Queue, payload T, priority int, fn func(context.Context, T) (R, error)) (R, error) {
	var zero R
	handle, err := q.Enqueue(payload, priority, func(ctx context.Context, p any) (any, error) {
		return fn(ctx, p.(T))
	})
	if err != nil {
		return zero, err
	}
	value, err := handle.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(R)
	if !ok {
		return zero, fmt.Errorf("work item %s returned %T, want %T", handle.ID(), value, zero)
	}
	return typed, nil
}
