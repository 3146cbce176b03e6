// Package push implements the Push Publisher of spec.md §4.7: delivery of a
// single notification to one device token or topic via FCM's HTTP v1 API, using a
// service account for OAuth2 and classifying the per-target response into
// the outcomes the Delivery State Machine needs (spec.md §4.4, §7).
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
)

// timeout is the hard per-call deadline spec.md §5 assigns to push sends.
const timeout = 10 * time.Second

// fcmScope is the single scope FCM v1 send requires.
const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// Outcome classifies an FCM send result into the buckets the worker's
// retry/terminal logic needs (spec.md §4.4, §7, §9).
type Outcome int

const (
	// Ok means FCM accepted the message for delivery.
	Ok Outcome = iota
	// Unregistered means the token is dead and should be removed from the
	// Device Registry (spec.md §4.8) rather than retried.
	Unregistered
	// InvalidArgument means the request itself was malformed (bad payload,
	// bad token shape) — permanent, never retried.
	InvalidArgument
	// Transient means FCM or the network failed in a way a retry can fix.
	Transient
	// PermanentOther covers any other 4xx FCM returns that isn't one of the
	// above, treated conservatively as permanent.
	PermanentOther
)

// Publisher is the narrow interface the Delivery State Machine depends on.
type Publisher interface {
	Send(ctx context.Context, req model.PushRequest) (Outcome, error)
}

// Client is the production Publisher, backed by FCM's HTTP v1 send endpoint.
type Client struct {
	projectID  string
	httpClient *http.Client
	tokens     *tokenCache
	logger     zerolog.Logger
}

// New builds a Client from a service account credentials file. rdb is the
// shared Redis client; a nil rdb (Redis unconfigured, spec.md §6/§9) keeps
// the token cache purely in-process.
func New(ctx context.Context, projectID, credentialsFile string, rdb *redis.Client, logger *zerolog.Logger) (*Client, error) {
	raw, err := readCredentials(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("push: read credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("push: parse service account: %w", err)
	}

	sub := logger.With().Str("component", "push_client").Logger()

	var backing backingCache
	if rdb != nil {
		backing = newRedisTokenCache(rdb, projectID, logger)
	}

	return &Client{
		projectID:  projectID,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     newTokenCache(&oauth2TokenSource{ts: creds.TokenSource}, backing),
		logger:     sub,
	}, nil
}

func readCredentials(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// oauth2TokenSource adapts golang.org/x/oauth2's TokenSource into the
// tokenSource shape tokenCache expects, recording a refresh on every call
// into the underlying source, including calls it answers from its own
// still-valid token (spec.md §9).
type oauth2TokenSource struct {
	ts oauth2.TokenSource
}

func (o *oauth2TokenSource) Token(ctx context.Context) (string, time.Time, error) {
	tok, err := o.ts.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("push: oauth2 token: %w", err)
	}
	metrics.OAuth2Refreshes.Inc()
	return tok.AccessToken, tok.Expiry, nil
}

// fcmMessage is the HTTP v1 wire envelope (the "message" field of
// https://fcm.googleapis.com/v1/projects/{project}/messages:send).
type fcmMessage struct {
	Message fcmPayload `json:"message"`
}

type fcmPayload struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroidConfig `json:"android,omitempty"`
	Apns         *fcmApnsConfig    `json:"apns,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroidConfig struct {
	Priority string `json:"priority,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

// fcmApnsConfig carries the APNs-specific fields FCM forwards verbatim to
// Apple, mirroring the Android priority/content-available split for iOS
// targets (spec.md §4.7).
type fcmApnsConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload *fcmApnsPayload   `json:"payload,omitempty"`
}

type fcmApnsPayload struct {
	Aps fcmAps `json:"aps"`
}

type fcmAps struct {
	ContentAvailable int `json:"content-available,omitempty"`
}

type fcmErrorBody struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts one message to FCM and classifies the response. A nil error
// with a non-Ok Outcome is the normal "this target failed in a known way"
// path; a non-nil error means the call itself could not be completed and
// classification was impossible (the worker treats that as Transient).
func (c *Client) Send(ctx context.Context, req model.PushRequest) (Outcome, error) {
	body, err := json.Marshal(buildMessage(req))
	if err != nil {
		return PermanentOther, fmt.Errorf("push: marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := c.tokens.Get(ctx, time.Now())
	if err != nil {
		return Transient, fmt.Errorf("push: acquire token: %w", err)
	}

	url := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", c.projectID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return PermanentOther, fmt.Errorf("push: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Transient, fmt.Errorf("push: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Ok, nil
	}

	var errBody fcmErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&errBody)

	return classifyStatus(resp.StatusCode, errBody.Error.Status), nil
}

// classifyStatus maps an FCM v1 error response to an Outcome per spec.md
// §4.7/§9: UNREGISTERED always means the token is dead; other 400s are a
// bad request; 429/5xx are transient; anything else defaults conservatively
// to permanent so the worker doesn't retry forever against a bug.
func classifyStatus(statusCode int, fcmStatus string) Outcome {
	switch fcmStatus {
	case "UNREGISTERED":
		return Unregistered
	case "INVALID_ARGUMENT":
		return InvalidArgument
	}

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return Transient
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		// A credentials problem will not resolve by retrying this send.
		return PermanentOther
	default:
		return PermanentOther
	}
}

// buildMessage translates the domain-level PushRequest into FCM's wire
// shape, mapping spec.md §4.7's three priority levels onto Android's
// "normal"/"high" delivery classes and the equivalent APNs priority header,
// plus aps.content-available for critical so a backgrounded iOS app wakes
// to re-fetch.
func buildMessage(req model.PushRequest) fcmMessage {
	payload := fcmPayload{
		Notification: &fcmNotification{Title: req.Title, Body: req.Body},
		Data:         stringifyData(req.Data),
	}

	if req.Target.Topic != "" {
		payload.Topic = req.Target.Topic
	} else {
		payload.Token = req.Target.Token
	}

	android := &fcmAndroidConfig{Priority: "normal"}
	apns := &fcmApnsConfig{Headers: map[string]string{"apns-priority": "5"}}
	if req.Priority == model.PriorityHigh || req.Priority == model.PriorityCritical {
		android.Priority = "high"
		apns.Headers["apns-priority"] = "10"
	}
	if req.TTL > 0 {
		android.TTL = fmt.Sprintf("%ds", int(req.TTL.Seconds()))
	}
	if req.Priority == model.PriorityCritical {
		apns.Payload = &fcmApnsPayload{Aps: fcmAps{ContentAvailable: 1}}
	}
	payload.Android = android
	payload.Apns = apns

	return fcmMessage{Message: payload}
}

// stringifyData flattens the notification payload into FCM's required
// map[string]string data field, per spec.md §4.7's note that FCM data
// payloads carry no nested structure.
func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
