package wake

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/syncpulse-dev/notify-worker/internal/metrics"
)

func TestChannel_SignalThenReceive(t *testing.T) {
	c := New()
	c.TrySignal()

	select {
	case <-c.C():
	default:
		t.Fatal("expected a signal to be available")
	}
}

// TestChannel_DropsWhenFull exercises invariant 8 (spec.md §8): an overflow
// signal is dropped, not blocked on, and the drop is observable in the
// wake_drops counter rather than silently lost.
func TestChannel_DropsWhenFull(t *testing.T) {
	c := New()

	for i := 0; i < capacity; i++ {
		c.TrySignal()
	}
	before := testutil.ToFloat64(metrics.WakeDrops)

	done := make(chan struct{})
	go func() {
		c.TrySignal()
		close(done)
	}()
	<-done // never blocks: the channel is already at capacity

	assert.Equal(t, capacity, len(c.ch))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.WakeDrops))
}
