// Package model holds the storage-agnostic core types shared by the DB
// Gateway, the Delivery State Machine, and the transports. None of these
// types carry DB tags, and only BusEnvelope, which is itself the bus's JSON
// body, carries JSON tags; other mapping to wire/row shapes lives in the
// packages that own those concerns (internal/db, internal/push).
package model

import (
	"time"

	"github.com/google/uuid"
)

// Priority maps to push priority per spec: normal/high pass through,
// critical is sent as FCM high + content-available.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// BroadcastUserID is the reserved all-zero identifier denoting a broadcast
// row. It is never assigned to a real user.
var BroadcastUserID uuid.UUID

// IsBroadcastID reports whether id is the reserved broadcast identifier.
func IsBroadcastID(id uuid.UUID) bool { return id == BroadcastUserID }

// Notification is the row of record described in spec.md §3. The worker is
// the sole writer of IsProcessed, ErrorCount, LastError, LastErrorAt, and
// UpdatedAt for rows it is currently handling; producers own creation and
// every other field.
type Notification struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Title            string
	Message          string
	NotificationType string
	Priority         Priority
	Payload          map[string]any

	IsProcessed bool
	DeliverAt   time.Time

	ErrorCount  int
	LastError   string
	LastErrorAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsBroadcast reports whether this row targets every user rather than one.
func (n *Notification) IsBroadcast() bool { return IsBroadcastID(n.UserID) }

// Device is a registered push target for a user: a token plus the platform
// it was issued on (e.g. "android", "ios", "web").
type Device struct {
	Token    string
	Platform string
}
