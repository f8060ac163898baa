package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func TestEveryTicksOnClock(t *testing.T) {
	clk := testclock.NewFakeClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Every(ctx, clk, time.Minute, func(context.Context) { runs.Add(1) }) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	clk.Step(30 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	clk.Step(30 * time.Second)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}

func TestEveryDisabledInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Every(ctx, testclock.NewFakeClock(time.Now()), 0, func(context.Context) { t.Fatal("must not run") }))
}
