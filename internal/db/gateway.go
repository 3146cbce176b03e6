// Package db is the DB Gateway of spec.md §4.1: parameterized statements
// against the notifications and user_devices tables, plus the dedicated
// LISTEN session of listener.go. record_success/record_failure are single
// stored-procedure calls so concurrent workers cannot double-increment
// error_count (spec.md §4.1, §5, §9).
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("db: not found")

// Gateway implements the DB Gateway. It owns the shared pool; the listener
// holds a separate dedicated connection (see listener.go).
type Gateway struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewGateway creates a Gateway over the shared pool.
func NewGateway(pool *pgxpool.Pool, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		pool:   pool,
		logger: logger.With().Str("component", "db_gateway").Logger(),
	}
}

// Ping reports whether the pool can presently acquire a connection, backing
// the Health Surface's GET /health (spec.md §4.9).
func (g *Gateway) Ping(ctx context.Context) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("db: acquire for ping: %w", err)
	}
	defer conn.Release()
	return conn.Ping(ctx)
}

// FetchDue returns up to batchSize rows where is_processed = false and
// deliver_at <= now, ordered by created_at ascending, using the partial
// index spec.md §6 names.
func (g *Gateway) FetchDue(ctx context.Context, batchSize int, now time.Time) ([]model.Notification, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, user_id, title, message, notification_type, priority,
		       payload, is_processed, deliver_at, error_count,
		       COALESCE(last_error, ''), last_error_at, created_at, updated_at
		  FROM notifications
		 WHERE is_processed = false AND deliver_at <= $1
		 ORDER BY created_at ASC
		 LIMIT $2`, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("db: fetch_due: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var lastErrorAt *time.Time
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Message, &n.NotificationType, &n.Priority,
			&n.Payload, &n.IsProcessed, &n.DeliverAt, &n.ErrorCount,
			&n.LastError, &lastErrorAt, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("db: scan notification row: %w", err)
		}
		if lastErrorAt != nil {
			n.LastErrorAt = *lastErrorAt
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: fetch_due rows: %w", err)
	}
	return out, nil
}

// RecordSuccess marks a row terminal iff it is currently unprocessed,
// reporting whether this call is the one that flipped it (spec.md §4.1,
// testable property 5).
func (g *Gateway) RecordSuccess(ctx context.Context, id uuid.UUID) (bool, error) {
	var affected bool
	err := g.pool.QueryRow(ctx, `SELECT sp_notification_success($1)`, id).Scan(&affected)
	if err != nil {
		return false, fmt.Errorf("db: record_success: %w", err)
	}
	return affected, nil
}

// RecordFailure increments error_count and, once the threshold is reached,
// also marks the row terminal in the same statement (spec.md §4.1). count
// is the row's error_count after this call, letting the caller log how
// many attempts a row was abandoned after without a second round-trip.
func (g *Gateway) RecordFailure(ctx context.Context, id uuid.UUID, errText string, maxRetries int) (stop bool, count int, err error) {
	err = g.pool.QueryRow(ctx,
		`SELECT stop, count FROM sp_notification_failure($1, $2, $3)`, id, errText, maxRetries,
	).Scan(&stop, &count)
	if err != nil {
		return false, 0, fmt.Errorf("db: record_failure: %w", err)
	}
	return stop, count, nil
}

// FetchDevices returns the device tokens registered for a user.
func (g *Gateway) FetchDevices(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT token, platform FROM user_devices WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db: fetch_devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.Token, &d.Platform); err != nil {
			return nil, fmt.Errorf("db: scan device row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDevice removes a (user_id, token) pair. Deletion is idempotent: a
// token that is already gone is not an error (spec.md §4.8).
func (g *Gateway) DeleteDevice(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := g.pool.Exec(ctx,
		`DELETE FROM user_devices WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return fmt.Errorf("db: delete_device: %w", err)
	}
	return nil
}

// IsNoRows reports whether err is pgx's no-rows sentinel, for callers that
// need to distinguish "nothing matched" from a real I/O error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
