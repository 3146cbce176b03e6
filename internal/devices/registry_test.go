package devices

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
)

type fakeStore struct {
	devices map[uuid.UUID][]model.Device
	deleted []string
}

func (s *fakeStore) FetchDevices(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	return s.devices[userID], nil
}

func (s *fakeStore) DeleteDevice(ctx context.Context, userID uuid.UUID, token string) error {
	s.deleted = append(s.deleted, token)
	return nil
}

func TestDBRegistry_ForUser(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{devices: map[uuid.UUID][]model.Device{
		userID: {{Token: "tok-1", Platform: "ios"}},
	}}
	reg := NewDBRegistry(store)

	devices, err := reg.ForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []model.Device{{Token: "tok-1", Platform: "ios"}}, devices)
}

func TestDBRegistry_Forget(t *testing.T) {
	store := &fakeStore{devices: map[uuid.UUID][]model.Device{}}
	reg := NewDBRegistry(store)

	err := reg.Forget(context.Background(), uuid.New(), "dead-token")
	require.NoError(t, err)
	assert.Equal(t, []string{"dead-token"}, store.deleted)
}
