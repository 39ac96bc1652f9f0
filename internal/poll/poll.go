// Package poll provides the bounded polling loop used by every readiness and
// reachability wait.
package poll

import (
	"context"
	"time"

	"github.com/fgeck/tapwake/internal/clock"
)

// Until evaluates cond every interval until it returns true, the timeout
// elapses, or ctx is done. cond is always evaluated at least once. It reports
// whether cond became true.
func Until(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, cond func() bool) bool {
	if interval <= 0 {
		interval = time.Millisecond
	}
	deadline := clk.Now().Add(timeout)

	for {
		if cond() {
			return true
		}
		if !clk.Now().Before(deadline) {
			return false
		}

		wait := interval
		if remaining := deadline.Sub(clk.Now()); remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return false
		case <-clk.After(wait):
		}
	}
}
