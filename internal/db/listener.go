package db

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
)

// Listener holds the dedicated LISTEN session spec.md §4.1 requires (kept
// outside the shared pool). It reconnects on session loss with exponential
// backoff capped at 30s and is the sole producer behind the returned
// channel: Listen never blocks the caller on a disconnect, it just stops
// yielding payloads until the session comes back.
type Listener struct {
	connString string
	channel    string
	logger     zerolog.Logger

	crashed atomic.Bool
}

// NewListener creates a Listener for the given channel. connString is the
// same DSN the pool uses; the listener opens its own dedicated connection.
func NewListener(connString, channel string, logger *zerolog.Logger) *Listener {
	return &Listener{
		connString: connString,
		channel:    channel,
		logger:     logger.With().Str("component", "db_listener").Logger(),
	}
}

// Crashed reports whether the listener's session is currently down: it is
// set on every disconnect and cleared once LISTEN succeeds again (context
// cancelled during shutdown does not count as crashed). Backing the Health
// Surface's liveness check (spec.md §4.9).
func (l *Listener) Crashed() bool { return l.crashed.Load() }

// Listen opens a dedicated session, issues LISTEN on the channel, and
// yields each notification payload (spec.md: "the row id as text") on the
// returned channel until ctx is cancelled. Reconnection happens internally;
// the only way this goroutine exits is ctx cancellation.
func (l *Listener) Listen(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 30 * time.Second
		bo.MaxElapsedTime = 0 // retry forever; the caller decides when to stop via ctx

		for {
			if ctx.Err() != nil {
				return
			}

			err := l.subscribeAndForward(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				// subscribeAndForward only returns nil on ctx cancellation,
				// handled above; anything else is a disconnect to retry.
				continue
			}

			l.crashed.Store(true)
			wait := bo.NextBackOff()
			l.logger.Warn().Err(err).Dur("retry_in", wait).Msg("listener disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			metrics.ListenerReconnects.Inc()
		}
	}()

	return out
}

// subscribeAndForward opens one dedicated connection, issues LISTEN, and
// blocks on notifications until the connection fails or ctx is cancelled.
func (l *Listener) subscribeAndForward(ctx context.Context, out chan<- string) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("listener: connect: %w", err)
	}
	defer conn.Close(context.Background())

	sanitized := pgx.Identifier{l.channel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
		return fmt.Errorf("listener: LISTEN: %w", err)
	}

	l.logger.Info().Str("channel", l.channel).Msg("listener subscribed")
	l.crashed.Store(false)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("listener: wait for notification: %w", err)
		}

		select {
		case out <- notification.Payload:
		case <-ctx.Done():
			return nil
		}
	}
}
