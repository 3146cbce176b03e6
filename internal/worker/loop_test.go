package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/clock"
	"github.com/syncpulse-dev/notify-worker/internal/config"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/push"
	"github.com/syncpulse-dev/notify-worker/internal/wake"
)

func newTestLoop(gw *fakeGateway, b *fakeBus, p *fakePush, r *fakeRegistry, batchSize int) *Loop {
	logger := zerolog.Nop()
	cfg := config.WorkerConfig{BatchSize: batchSize, MaxRetries: 3}
	return New(gw, wake.New(), b, p, r, clock.New(), cfg, &logger)
}

// A delivered row is committed as a success.
func TestLoop_RunCycle_CommitsSuccess(t *testing.T) {
	truthy := true
	n := model.Notification{ID: uuid.New(), UserID: uuid.New()}
	gw := newFakeGateway([]model.Notification{n})
	b := &fakeBus{userOutcome: bus.Outcome{Delivered: &truthy}}
	l := newTestLoop(gw, b, &fakePush{}, &fakeRegistry{}, 10)

	l.runCycle(context.Background())

	assert.True(t, gw.successes[n.ID])
	assert.Zero(t, gw.failures[n.ID])
}

// A row that fails on every transport, below max_retries, is committed as
// a non-terminal failure and left for the next cycle.
func TestLoop_RunCycle_CommitsNonTerminalFailure(t *testing.T) {
	n := model.Notification{ID: uuid.New(), UserID: uuid.New()}
	gw := newFakeGateway([]model.Notification{n})
	gw.stopAt = 3
	b := &fakeBus{userOutcome: bus.Outcome{}}
	r := &fakeRegistry{devices: []model.Device{{Token: "tok-1"}}}
	l := newTestLoop(gw, b, &fakePush{outcomes: []push.Outcome{push.Transient}}, r, 10)

	l.runCycle(context.Background())

	assert.False(t, gw.successes[n.ID])
	assert.Equal(t, 1, gw.failures[n.ID])
}

// A full batch triggers an immediate re-fetch (backlog drain) instead of
// waiting for the next wake signal or timer tick (spec.md §4.3).
func TestLoop_RunCycle_DrainsFullBatchesWithoutWaiting(t *testing.T) {
	truthy := true
	batch1 := []model.Notification{{ID: uuid.New(), UserID: uuid.New()}, {ID: uuid.New(), UserID: uuid.New()}}
	batch2 := []model.Notification{{ID: uuid.New(), UserID: uuid.New()}}
	gw := newFakeGateway(batch1, batch2)
	b := &fakeBus{userOutcome: bus.Outcome{Delivered: &truthy}}
	l := newTestLoop(gw, b, &fakePush{}, &fakeRegistry{}, 2) // batch size == len(batch1)

	l.runCycle(context.Background())

	assert.Equal(t, 2, gw.fetched) // both batches drained in one cycle
	for _, n := range append(batch1, batch2...) {
		assert.True(t, gw.successes[n.ID])
	}
}

// A short (non-full) batch does not trigger a second fetch.
func TestLoop_RunCycle_StopsOnShortBatch(t *testing.T) {
	truthy := true
	batch1 := []model.Notification{{ID: uuid.New(), UserID: uuid.New()}}
	gw := newFakeGateway(batch1)
	b := &fakeBus{userOutcome: bus.Outcome{Delivered: &truthy}}
	l := newTestLoop(gw, b, &fakePush{}, &fakeRegistry{}, 10)

	l.runCycle(context.Background())

	assert.Equal(t, 1, gw.fetched)
}

// An empty fetch is a no-op: no dispatch, no extra fetch.
func TestLoop_RunCycle_EmptyFetchIsNoop(t *testing.T) {
	gw := newFakeGateway(nil)
	l := newTestLoop(gw, &fakeBus{}, &fakePush{}, &fakeRegistry{}, 10)

	l.runCycle(context.Background())

	assert.Equal(t, 1, gw.fetched)
	assert.Empty(t, gw.successes)
}
