// Package execute runs restore plans against a provider: one site at a
// time per worker, many sites concurrently, all sharing one rate
// budget. Failures are classified for retry, dependents of failed
// writes are blocked instead of attempted, and every outcome lands in
// a per-site report.
package execute

import (
	"context"
	"sync"
	"time"

	"github.com/sitesync/sitesync/pkg/telemetry"
)

// RateGate is a token bucket shared by all workers. Every provider
// call takes one token; when the bucket is empty callers block until
// the refill catches up or their context ends.
type RateGate struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	refill   float64 // tokens per second
	last     time.Time

	metrics *telemetry.Metrics
}

// NewRateGate creates a gate refilling at perSecond tokens with the
// given burst capacity.
func NewRateGate(perSecond float64, burst int, metrics *telemetry.Metrics) *RateGate {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateGate{
		capacity: float64(burst),
		tokens:   float64(burst),
		refill:   perSecond,
		last:     time.Now(),
		metrics:  metrics,
	}
}

// Wait blocks until a token is available or the context ends. A nil
// gate never blocks.
func (g *RateGate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	start := time.Now()
	for {
		g.mu.Lock()
		g.advance(time.Now())
		if g.tokens >= 1 {
			g.tokens--
			g.mu.Unlock()
			g.metrics.ObserveRateGateWait(time.Since(start))
			return nil
		}
		// Time until one token accrues.
		wait := time.Duration((1 - g.tokens) / g.refill * float64(time.Second))
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// advance credits tokens for elapsed time. Caller holds g.mu.
func (g *RateGate) advance(now time.Time) {
	elapsed := now.Sub(g.last).Seconds()
	if elapsed <= 0 {
		return
	}
	g.tokens += elapsed * g.refill
	if g.tokens > g.capacity {
		g.tokens = g.capacity
	}
	g.last = now
}
