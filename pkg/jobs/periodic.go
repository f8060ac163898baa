package jobs

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Every runs fn on each tick of interval until ctx is done. It always returns nil so it can be
// handed to an errgroup directly.
func Every(ctx context.Context, clk clock.WithTicker, interval time.Duration, fn func(context.Context)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			fn(ctx)
		}
	}
}
