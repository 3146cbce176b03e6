// Package devices implements the Device Registry of spec.md §4.8: the
// lookup the Delivery State Machine uses to turn a user id into the device
// tokens a push fan-out targets, plus cleanup of tokens FCM reports dead.
package devices

import (
	"context"

	"github.com/google/uuid"

	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
)

// store is the narrow slice of the DB Gateway the registry needs.
type store interface {
	FetchDevices(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	DeleteDevice(ctx context.Context, userID uuid.UUID, token string) error
}

// Registry is the interface the Delivery State Machine depends on.
type Registry interface {
	ForUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	Forget(ctx context.Context, userID uuid.UUID, token string) error
}

// DBRegistry is the uncached Registry, reading straight through to the DB
// Gateway on every call.
type DBRegistry struct {
	store store
}

// NewDBRegistry creates a DBRegistry over the given store.
func NewDBRegistry(store store) *DBRegistry {
	return &DBRegistry{store: store}
}

// ForUser returns the devices currently registered to userID.
func (r *DBRegistry) ForUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	return r.store.FetchDevices(ctx, userID)
}

// Forget removes a token FCM reported unregistered (spec.md §4.7, §4.8).
// Deletion is idempotent; a token already gone is not an error.
func (r *DBRegistry) Forget(ctx context.Context, userID uuid.UUID, token string) error {
	return r.store.DeleteDevice(ctx, userID, token)
}
