package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/devices"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
	"github.com/syncpulse-dev/notify-worker/internal/push"
)

// transport names the two delivery channels, used as the metrics label.
type transport string

const (
	transportBus  transport = "bus"
	transportPush transport = "push"
)

// machine runs the per-row delivery state machine of spec.md §4.4/§4.5:
// Start -> TryBus -> (Delivered | TryPush) -> (Delivered | Failed) for a
// user-targeted notification, and the always-terminal broadcast flow for
// one addressed to model.BroadcastUserID.
type machine struct {
	bus      bus.Publisher
	push     push.Publisher
	registry devices.Registry
	logger   zerolog.Logger
}

func newMachine(busClient bus.Publisher, pushClient push.Publisher, registry devices.Registry, logger *zerolog.Logger) *machine {
	return &machine{
		bus:      busClient,
		push:     pushClient,
		registry: registry,
		logger:   logger.With().Str("component", "delivery_machine").Logger(),
	}
}

// reasonNoDevices and reasonPushFailed are the last_error texts deliver
// surfaces on a non-delivered row, so a row with no registered device is
// distinguishable in the DB from one where push was attempted and refused
// (spec.md §4.1, §9).
const (
	reasonNoDevices     = "no_devices"
	reasonPushFailed    = "delivery failed on all transports"
	reasonRegistryError = "device registry lookup failed"
)

// deliver runs one notification through the state machine to a terminal
// outcome and reports whether the row should be committed as a success.
// A false return means every transport attempt in this pass failed: the
// caller commits a failure with the returned reason, and that commit
// decides whether the row has reached max_retries or stays live for the
// next cycle.
func (m *machine) deliver(ctx context.Context, n model.Notification) (bool, string) {
	if n.IsBroadcast() {
		return m.deliverBroadcast(ctx, n)
	}
	return m.deliverToUser(ctx, n)
}

// deliverToUser implements Start -> TryBus -> (Delivered | TryPush) ->
// (Delivered | Failed) for a single recipient (spec.md §4.4). The bus leg
// only carries a fixed "go re-fetch" signal — the client re-pulls the
// notification itself once woken, so delivery never depends on the
// envelope surviving the wire (spec.md §4.2).
func (m *machine) deliverToUser(ctx context.Context, n model.Notification) (bool, string) {
	log := m.logger.With().Stringer("notification_id", n.ID).Stringer("user_id", n.UserID).Logger()

	outcome, err := m.bus.PublishToUser(ctx, n.UserID, signalEnvelope(n))
	if err != nil {
		log.Warn().Err(err).Msg("bus publish failed, falling back to push")
		metrics.Deliveries.WithLabelValues(string(transportBus), "error").Inc()
	} else if outcome.IsDelivered() {
		metrics.Deliveries.WithLabelValues(string(transportBus), "delivered").Inc()
		return true, ""
	} else {
		metrics.Deliveries.WithLabelValues(string(transportBus), "absent").Inc()
	}

	return m.tryPushToUser(ctx, n, log)
}

// tryPushToUser fans the notification out to every device the registry
// knows about for this user; a single Ok is enough to call the row
// delivered (spec.md §4.4, §9). Tokens FCM reports unregistered or rejects
// as malformed are removed from the registry as a side effect.
func (m *machine) tryPushToUser(ctx context.Context, n model.Notification, log zerolog.Logger) (bool, string) {
	targets, err := m.registry.ForUser(ctx, n.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("device registry lookup failed")
		return false, reasonRegistryError
	}
	if len(targets) == 0 {
		log.Info().Msg("no registered devices, cannot push")
		return false, reasonNoDevices
	}

	delivered := false
	for _, d := range targets {
		req := model.PushRequest{
			Target:   model.PushTarget{Token: d.Token},
			Title:    n.Title,
			Body:     n.Message,
			Data:     n.Payload,
			Priority: n.Priority,
		}

		outcome, err := m.push.Send(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("token", redactedToken(d.Token)).Msg("push send failed")
			metrics.Deliveries.WithLabelValues(string(transportPush), "error").Inc()
			continue
		}

		switch outcome {
		case push.Ok:
			metrics.Deliveries.WithLabelValues(string(transportPush), "delivered").Inc()
			delivered = true
		case push.Unregistered, push.InvalidArgument:
			label := "unregistered"
			if outcome == push.InvalidArgument {
				label = "invalid_argument"
			}
			metrics.Deliveries.WithLabelValues(string(transportPush), label).Inc()
			if derr := m.registry.Forget(ctx, n.UserID, d.Token); derr != nil {
				log.Warn().Err(derr).Msg("failed to forget dead token")
			}
		case push.Transient:
			metrics.Deliveries.WithLabelValues(string(transportPush), "transient").Inc()
		default:
			metrics.Deliveries.WithLabelValues(string(transportPush), "permanent_other").Inc()
		}
	}

	if delivered {
		return true, ""
	}
	return false, reasonPushFailed
}

// deliverBroadcast implements spec.md §4.5: publish to the broadcast topic
// and to the FCM "all" topic, and, regardless of either outcome, treat the
// row as terminal. There is no per-device fan-out for a broadcast — FCM's
// topic messaging already reaches every subscribed device.
func (m *machine) deliverBroadcast(ctx context.Context, n model.Notification) (bool, string) {
	log := m.logger.With().Stringer("notification_id", n.ID).Logger()

	outcome, err := m.bus.PublishToTopic(ctx, broadcastTopic, broadcastEnvelope(n))
	if err != nil {
		log.Warn().Err(err).Msg("broadcast publish failed")
		metrics.Deliveries.WithLabelValues(string(transportBus), "error").Inc()
	} else if outcome.IsDelivered() {
		metrics.Deliveries.WithLabelValues(string(transportBus), "delivered").Inc()
	} else {
		metrics.Deliveries.WithLabelValues(string(transportBus), "absent").Inc()
	}

	req := model.PushRequest{
		Target:   model.PushTarget{Topic: "all"},
		Title:    n.Title,
		Body:     n.Message,
		Data:     n.Payload,
		Priority: n.Priority,
	}
	if _, err := m.push.Send(ctx, req); err != nil {
		log.Warn().Err(err).Msg("broadcast push failed")
		metrics.Deliveries.WithLabelValues(string(transportPush), "error").Inc()
	} else {
		metrics.Deliveries.WithLabelValues(string(transportPush), "sent").Inc()
	}

	// Broadcasts are always terminal: a zero-subscriber topic or a failed
	// push is not a reason to retry the same fan-out (spec.md §4.5, §9).
	return true, ""
}

// broadcastTopic is the realtime bus topic every broadcast publishes to.
const broadcastTopic = "global_notifications"

// signalEnvelope is the fixed "go re-fetch" envelope a user-targeted
// delivery publishes: it carries no notification content, only a count the
// client uses to decide whether to re-pull (spec.md §4.2, §4.4).
func signalEnvelope(n model.Notification) model.BusEnvelope {
	return model.BusEnvelope{
		Topic:     "notifications",
		EventType: "sync_notify",
		Payload: map[string]any{
			"type":  "sync_notify",
			"count": 1,
		},
		CreatedAt: n.CreatedAt,
	}
}

// broadcastEnvelope carries the notification's actual content, since a
// broadcast has no per-user delivery path for the client to re-fetch from
// (spec.md §4.5).
func broadcastEnvelope(n model.Notification) model.BusEnvelope {
	return model.BusEnvelope{
		Topic:     broadcastTopic,
		EventType: "sync_notify",
		Payload: map[string]any{
			"title":             n.Title,
			"message":           n.Message,
			"notification_type": n.NotificationType,
			"payload":           n.Payload,
		},
		CreatedAt: n.CreatedAt,
	}
}

// redactedToken avoids logging a raw device token in the worker's own
// warning logs; tokens are redacted whether or not DEBUG_MODE is set.
func redactedToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s…%s", token[:4], token[len(token)-4:])
}
