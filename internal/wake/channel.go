// Package wake implements the bounded signal queue connecting the DB
// listener to the worker loop (spec.md §4.2). Signals coalesce: the worker
// always re-reads ground truth via fetch_due, so dropping a signal under
// backpressure is correct, not lossy, as long as the fallback timer keeps
// guaranteeing forward progress.
package wake

import "github.com/syncpulse-dev/notify-worker/internal/metrics"

// capacity is fixed at 10 per spec.md §4.2.
const capacity = 10

// Channel is a bounded, drop-on-full wake signal queue.
type Channel struct {
	ch chan struct{}
}

// New creates an empty Channel at the spec-mandated capacity.
func New() *Channel {
	return &Channel{ch: make(chan struct{}, capacity)}
}

// TrySignal pushes a wake token, dropping it silently (and counting the
// drop) if the channel is already full.
func (c *Channel) TrySignal() {
	select {
	case c.ch <- struct{}{}:
		metrics.WakeSignals.Inc()
	default:
		metrics.WakeDrops.Inc()
	}
}

// C exposes the receive side for the worker loop's select.
func (c *Channel) C() <-chan struct{} {
	return c.ch
}
