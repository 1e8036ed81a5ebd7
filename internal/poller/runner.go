// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"github.com/MysteriaLV/modbus-alert/internal/clock"
)

// Ticker is anything the loop drives once per iteration.
type Ticker interface {
	Tick(now time.Time)
}

// Run is the single cooperative loop. Each iteration reads the clock once and
// ticks every Ticker in order with that instant. Nothing here may block.
// Returns when ctx is cancelled.
func Run(ctx context.Context, clk clock.Clock, period time.Duration, tickers ...Ticker) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := clk.Now()
			for _, t := range tickers {
				t.Tick(now)
			}
		}
	}
}
