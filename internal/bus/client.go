// Package bus implements the Bus Publisher of spec.md §4.6: a single-method
// HTTP client that publishes an envelope to a user or a topic on the
// realtime broker. It performs no retries of its own — the worker's retry
// policy is the retry (spec.md §4.6).
package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
)

// timeout is the hard deadline spec.md §5 assigns to bus calls.
const timeout = 5 * time.Second

// Outcome is the broker's structured response, tolerating the absence of
// either field (spec.md §4.6).
type Outcome struct {
	Delivered       *bool
	SubscriberCount *int
	StatusCode      int
}

// IsDelivered applies the conservative rule spec.md §4.4/§9 requires: a
// missing or false `delivered` field, or a subscriber count of zero, means
// "not delivered, fall back to push" rather than an error. An absent
// subscriber count does not by itself block delivery.
func (o Outcome) IsDelivered() bool {
	if o.Delivered == nil || !*o.Delivered {
		return false
	}
	if o.SubscriberCount != nil && *o.SubscriberCount <= 0 {
		return false
	}
	return true
}

type wireResponse struct {
	Delivered       *bool `json:"delivered"`
	SubscriberCount *int  `json:"subscriber_count"`
}

// Publisher is the narrow interface the Delivery State Machine depends on.
type Publisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, env model.BusEnvelope) (Outcome, error)
	PublishToTopic(ctx context.Context, topic string, env model.BusEnvelope) (Outcome, error)
}

// Client is the production Publisher.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// New creates a Client against the realtime broker's base URL.
func New(baseURL, serviceToken string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "bus_client").Logger(),
	}
}

// PublishToUser posts to /internal/publish/user/{user_id} (spec.md §6).
func (c *Client) PublishToUser(ctx context.Context, userID uuid.UUID, env model.BusEnvelope) (Outcome, error) {
	return c.publish(ctx, fmt.Sprintf("%s/internal/publish/user/%s", c.baseURL, userID), env)
}

// PublishToTopic posts to /internal/publish/topic/{topic}, used for
// broadcasts (spec.md §4.5, §6).
func (c *Client) PublishToTopic(ctx context.Context, topic string, env model.BusEnvelope) (Outcome, error) {
	return c.publish(ctx, fmt.Sprintf("%s/internal/publish/topic/%s", c.baseURL, topic), env)
}

// publish performs the POST and returns an error only for the "transport
// transient" class of spec.md §7 (network failure, timeout, 5xx). A clean
// non-2xx 4xx, or a 2xx whose body says "no subscribers", is not an error:
// the caller reads Outcome.IsDelivered() to tell those apart.
func (c *Client) publish(ctx context.Context, url string, env model.BusEnvelope) (Outcome, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Outcome{}, fmt.Errorf("bus: marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("bus: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.serviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("bus: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Outcome{StatusCode: resp.StatusCode}, fmt.Errorf("bus: server error %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A non-5xx non-2xx response is not a transport error per spec.md
		// §4.4; it simply fails to deliver and falls through to push.
		return Outcome{StatusCode: resp.StatusCode}, nil
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		// A 2xx with an unparseable body still isn't "delivered"; treat it
		// like an absent delivered field rather than erroring the request.
		c.logger.Warn().Err(err).Str("url", url).Msg("bus: could not decode response body")
		return Outcome{StatusCode: resp.StatusCode}, nil
	}

	return Outcome{
		Delivered:       wire.Delivered,
		SubscriberCount: wire.SubscriberCount,
		StatusCode:      resp.StatusCode,
	}, nil
}
