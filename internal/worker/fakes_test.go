package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/push"
)

// fakeGateway is an in-memory stand-in for the DB Gateway: FetchDue serves
// from a preloaded queue of batches, and RecordSuccess/RecordFailure record
// what was committed for assertions.
type fakeGateway struct {
	mu sync.Mutex

	batches [][]model.Notification
	fetched int

	successes map[uuid.UUID]bool
	failures  map[uuid.UUID]int
	stopAt    int // RecordFailure reports stop=true once a row's failure count reaches this
}

func newFakeGateway(batches ...[]model.Notification) *fakeGateway {
	return &fakeGateway{
		batches:   batches,
		successes: map[uuid.UUID]bool{},
		failures:  map[uuid.UUID]int{},
		stopAt:    3,
	}
}

func (g *fakeGateway) FetchDue(ctx context.Context, batchSize int, now time.Time) ([]model.Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetched >= len(g.batches) {
		return nil, nil
	}
	b := g.batches[g.fetched]
	g.fetched++
	return b, nil
}

func (g *fakeGateway) RecordSuccess(ctx context.Context, id uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes[id] = true
	return true, nil
}

func (g *fakeGateway) RecordFailure(ctx context.Context, id uuid.UUID, errText string, maxRetries int) (bool, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id]++
	return g.failures[id] >= g.stopAt, g.failures[id], nil
}

// fakeBus lets each test script the Outcome/error returned per call, keyed
// by whether the call targets a user or a topic.
type fakeBus struct {
	mu           sync.Mutex
	userOutcome  bus.Outcome
	userErr      error
	topicOutcome bus.Outcome
	topicErr     error
	userCalls    int
	topicCalls   int
}

func (b *fakeBus) PublishToUser(ctx context.Context, userID uuid.UUID, env model.BusEnvelope) (bus.Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userCalls++
	return b.userOutcome, b.userErr
}

func (b *fakeBus) PublishToTopic(ctx context.Context, topic string, env model.BusEnvelope) (bus.Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicCalls++
	return b.topicOutcome, b.topicErr
}

// fakePush returns a scripted Outcome per call, in order; once the script
// is exhausted it repeats the last entry.
type fakePush struct {
	mu       sync.Mutex
	outcomes []push.Outcome
	calls    int
	requests []model.PushRequest
}

func (p *fakePush) Send(ctx context.Context, req model.PushRequest) (push.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	p.calls++
	if len(p.outcomes) == 0 {
		return push.Ok, nil
	}
	idx := p.calls - 1
	if idx >= len(p.outcomes) {
		idx = len(p.outcomes) - 1
	}
	return p.outcomes[idx], nil
}

// fakeRegistry serves a fixed device list and records forgotten tokens.
type fakeRegistry struct {
	mu      sync.Mutex
	devices []model.Device
	forgot  []string
}

func (r *fakeRegistry) ForUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices, nil
}

func (r *fakeRegistry) Forget(ctx context.Context, userID uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgot = append(r.forgot, token)
	return nil
}
