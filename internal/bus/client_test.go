package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
)

func TestOutcome_IsDelivered(t *testing.T) {
	truthy, falsy := true, false
	zero, positive := 0, 3

	cases := []struct {
		name string
		o    Outcome
		want bool
	}{
		{"delivered with subscribers", Outcome{Delivered: &truthy, SubscriberCount: &positive}, true},
		{"delivered field absent", Outcome{}, false},
		{"delivered false", Outcome{Delivered: &falsy}, false},
		{"delivered true but zero subscribers", Outcome{Delivered: &truthy, SubscriberCount: &zero}, false},
		{"delivered true, subscriber count absent", Outcome{Delivered: &truthy}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.o.IsDelivered())
		})
	}
}

func TestClient_PublishToUser_Delivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Service-Token"))
		w.Write([]byte(`{"delivered": true, "subscriber_count": 1}`))
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, "test-token", &logger)

	outcome, err := c.PublishToUser(context.Background(), uuid.New(), model.BusEnvelope{})
	require.NoError(t, err)
	assert.True(t, outcome.IsDelivered())
}

func TestClient_Publish_ServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, "test-token", &logger)

	_, err := c.PublishToUser(context.Background(), uuid.New(), model.BusEnvelope{})
	assert.Error(t, err)
}

func TestClient_Publish_ClientErrorIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, "test-token", &logger)

	outcome, err := c.PublishToTopic(context.Background(), "broadcast", model.BusEnvelope{})
	require.NoError(t, err)
	assert.False(t, outcome.IsDelivered())
}
