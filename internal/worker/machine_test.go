package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/push"
)

func newTestMachine(b bus.Publisher, p push.Publisher, r *fakeRegistry) *machine {
	logger := zerolog.Nop()
	return newMachine(b, p, r, &logger)
}

func userRow() model.Notification {
	return model.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "t", Message: "m"}
}

// S1: bus delivers -> terminal delivered, push never attempted.
func TestMachine_BusDelivers(t *testing.T) {
	truthy := true
	fb := &fakeBus{userOutcome: bus.Outcome{Delivered: &truthy}}
	fp := &fakePush{}
	reg := &fakeRegistry{}
	m := newTestMachine(fb, fp, reg)

	delivered, reason := m.deliver(context.Background(), userRow())

	assert.True(t, delivered)
	assert.Empty(t, reason)
	assert.Equal(t, 0, fp.calls)
}

// S2: bus reports not delivered -> falls back to push, one device succeeds.
func TestMachine_FallsBackToPushOnBusMiss(t *testing.T) {
	fb := &fakeBus{userOutcome: bus.Outcome{}} // absent delivered field
	fp := &fakePush{outcomes: []push.Outcome{push.Ok}}
	reg := &fakeRegistry{devices: []model.Device{{Token: "tok-1", Platform: "android"}}}
	m := newTestMachine(fb, fp, reg)

	delivered, reason := m.deliver(context.Background(), userRow())

	assert.True(t, delivered)
	assert.Empty(t, reason)
	assert.Equal(t, 1, fp.calls)
}

// Bus transport error also falls back to push (not just a clean "absent").
func TestMachine_FallsBackToPushOnBusError(t *testing.T) {
	fb := &fakeBus{userErr: errors.New("connection refused")}
	fp := &fakePush{outcomes: []push.Outcome{push.Ok}}
	reg := &fakeRegistry{devices: []model.Device{{Token: "tok-1"}}}
	m := newTestMachine(fb, fp, reg)

	delivered, _ := m.deliver(context.Background(), userRow())
	assert.True(t, delivered)
}

// S3: both transports fail across every device -> not delivered, with a
// reason distinct from "no devices registered".
func TestMachine_BothTransportsFail(t *testing.T) {
	fb := &fakeBus{userOutcome: bus.Outcome{}}
	fp := &fakePush{outcomes: []push.Outcome{push.Transient}}
	reg := &fakeRegistry{devices: []model.Device{{Token: "tok-1"}}}
	m := newTestMachine(fb, fp, reg)

	delivered, reason := m.deliver(context.Background(), userRow())
	assert.False(t, delivered)
	assert.Equal(t, reasonPushFailed, reason)
}

// No registered devices at all -> not delivered, push never called, and the
// reason distinguishes this from a push attempt that was refused.
func TestMachine_NoDevicesRegistered(t *testing.T) {
	fb := &fakeBus{userOutcome: bus.Outcome{}}
	fp := &fakePush{}
	reg := &fakeRegistry{}
	m := newTestMachine(fb, fp, reg)

	delivered, reason := m.deliver(context.Background(), userRow())
	assert.False(t, delivered)
	assert.Equal(t, reasonNoDevices, reason)
	assert.Equal(t, 0, fp.calls)
}

// An UNREGISTERED outcome on one device still lets a later device's Ok
// count as delivered, and the dead token is forgotten either way.
func TestMachine_UnregisteredTokenIsForgottenAndOthersStillTried(t *testing.T) {
	fb := &fakeBus{userOutcome: bus.Outcome{}}
	fp := &fakePush{outcomes: []push.Outcome{push.Unregistered, push.Ok}}
	reg := &fakeRegistry{devices: []model.Device{{Token: "dead"}, {Token: "live"}}}
	m := newTestMachine(fb, fp, reg)

	delivered, _ := m.deliver(context.Background(), userRow())
	assert.True(t, delivered)
	assert.Equal(t, []string{"dead"}, reg.forgot)
}

// A bad-token-shape INVALID_ARGUMENT response is grouped with UNREGISTERED:
// the token is forgotten too, since FCM will never accept it in that shape.
func TestMachine_InvalidArgumentTokenIsAlsoForgotten(t *testing.T) {
	fb := &fakeBus{userOutcome: bus.Outcome{}}
	fp := &fakePush{outcomes: []push.Outcome{push.InvalidArgument, push.Ok}}
	reg := &fakeRegistry{devices: []model.Device{{Token: "malformed"}, {Token: "live"}}}
	m := newTestMachine(fb, fp, reg)

	delivered, _ := m.deliver(context.Background(), userRow())
	assert.True(t, delivered)
	assert.Equal(t, []string{"malformed"}, reg.forgot)
}

// S5: broadcasts are always terminal, regardless of the bus outcome, and
// also fan out to the FCM "all" topic.
func TestMachine_BroadcastAlwaysTerminal(t *testing.T) {
	fb := &fakeBus{topicOutcome: bus.Outcome{}} // no subscribers
	fp := &fakePush{}
	reg := &fakeRegistry{}
	m := newTestMachine(fb, fp, reg)

	row := model.Notification{ID: uuid.New(), UserID: model.BroadcastUserID}
	delivered, reason := m.deliver(context.Background(), row)
	assert.True(t, delivered)
	assert.Empty(t, reason)
	assert.Equal(t, 1, fb.topicCalls)
	assert.Equal(t, 0, fb.userCalls)
	assert.Equal(t, 1, fp.calls)
	require.Len(t, fp.requests, 1)
	assert.Equal(t, "all", fp.requests[0].Target.Topic)
}

func TestMachine_BroadcastTerminalEvenOnBusError(t *testing.T) {
	fb := &fakeBus{topicErr: errors.New("broker unreachable")}
	fp := &fakePush{}
	reg := &fakeRegistry{}
	m := newTestMachine(fb, fp, reg)

	row := model.Notification{ID: uuid.New(), UserID: model.BroadcastUserID}
	delivered, _ := m.deliver(context.Background(), row)
	assert.True(t, delivered)
}
