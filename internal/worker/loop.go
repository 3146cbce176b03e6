// Package worker implements the Worker Loop (spec.md §4.3) and the Delivery
// State Machine (spec.md §4.4/§4.5) that sit on top of it.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/clock"
	"github.com/syncpulse-dev/notify-worker/internal/config"
	"github.com/syncpulse-dev/notify-worker/internal/devices"
	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
	"github.com/syncpulse-dev/notify-worker/internal/push"
	"github.com/syncpulse-dev/notify-worker/internal/wake"
)

// gateway is the narrow slice of the DB Gateway the loop needs; kept as an
// interface so tests can substitute an in-memory fake.
type gateway interface {
	FetchDue(ctx context.Context, batchSize int, now time.Time) ([]model.Notification, error)
	RecordSuccess(ctx context.Context, id uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, errText string, maxRetries int) (stop bool, count int, err error)
}

// Loop is the Worker Loop of spec.md §4.3: it wakes on a signal or a
// fallback timer, fetches the due batch, dispatches each row through the
// Delivery State Machine with bounded parallelism, and commits the
// terminal outcome of each row.
type Loop struct {
	gw      gateway
	wake    *wake.Channel
	machine *machine
	clock   clock.Clock
	cfg     config.WorkerConfig
	logger  zerolog.Logger
}

// New builds a Loop. cfg.BatchSize bounds concurrent per-row dispatch
// within one fetched batch (one goroutine per fetched row), adapting the
// teacher's worker-pool pattern to an in-memory batch rather than an AMQP
// queue.
func New(
	gw gateway,
	wakeCh *wake.Channel,
	busClient bus.Publisher,
	pushClient push.Publisher,
	registry devices.Registry,
	clk clock.Clock,
	cfg config.WorkerConfig,
	logger *zerolog.Logger,
) *Loop {
	return &Loop{
		gw:      gw,
		wake:    wakeCh,
		machine: newMachine(busClient, pushClient, registry, logger),
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With().Str("component", "worker_loop").Logger(),
	}
}

// Run blocks until ctx is cancelled, processing batches as it goes. ctx
// only governs whether the loop starts another cycle: once it is
// cancelled, Run stops waking on new signals but any cycle already
// in flight keeps running against ioCtx, which the caller is expected to
// leave live until cfg.ShutdownGrace elapses or the cycle finishes,
// whichever comes first (spec.md §5).
func (l *Loop) Run(ctx context.Context, ioCtx context.Context) {
	l.logger.Info().Dur("poll_interval", l.cfg.PollInterval).Int("batch_size", l.cfg.BatchSize).Msg("worker loop starting")

	timer := l.clock.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("worker loop stopping")
			return
		case <-l.wake.C():
			l.runCycle(ioCtx)
		case <-timer.C():
			l.runCycle(ioCtx)
		}
		timer.Reset(l.cfg.PollInterval)
	}
}

// runCycle fetches and fully drains the due backlog: if a fetch returns a
// full batch, it immediately fetches again rather than waiting for the
// next wake or timer tick (spec.md §4.3's backlog-drain behavior).
func (l *Loop) runCycle(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		rows, err := l.gw.FetchDue(ctx, l.cfg.BatchSize, l.clock.Now())
		metrics.BatchesFetched.Inc()
		if err != nil {
			l.logger.Error().Err(err).Msg("fetch_due failed")
			return
		}
		metrics.RowsFetched.Add(float64(len(rows)))

		if len(rows) == 0 {
			return
		}

		l.dispatch(ctx, rows)

		if len(rows) < l.cfg.BatchSize {
			return
		}
		// A full batch means more rows are likely still due; loop without
		// waiting for the next signal.
	}
}

// dispatch runs every row in the batch through the delivery machine with
// parallelism bounded to the batch size, matching the teacher's
// sync.WaitGroup worker-pool shape.
func (l *Loop) dispatch(ctx context.Context, rows []model.Notification) {
	var wg sync.WaitGroup
	for _, n := range rows {
		wg.Add(1)
		go func(n model.Notification) {
			defer wg.Done()
			l.handle(ctx, n)
		}(n)
	}
	wg.Wait()
}

// handle runs one row through the state machine and commits its outcome,
// retrying transient commit errors in-process before abandoning the row to
// the next cycle (spec.md §7).
func (l *Loop) handle(ctx context.Context, n model.Notification) {
	log := l.logger.With().Stringer("notification_id", n.ID).Logger()

	delivered, reason := l.machine.deliver(ctx, n)

	if delivered {
		ok, err := recordSuccess(ctx, l.gw, n.ID)
		if err != nil {
			log.Error().Err(err).Msg("record_success failed after retries, row left for next cycle")
			return
		}
		if ok {
			metrics.RowsTerminal.WithLabelValues(terminalReason(n)).Inc()
		}
		return
	}

	if reason == "" {
		reason = reasonPushFailed
	}
	stop, count, err := recordFailure(ctx, l.gw, n.ID, reason, l.cfg.MaxRetries)
	if err != nil {
		log.Error().Err(err).Msg("record_failure failed after retries, row left for next cycle")
		return
	}
	if stop {
		metrics.RowsTerminal.WithLabelValues("max_retries").Inc()
		log.Warn().Int("max_retries", l.cfg.MaxRetries).Int("error_count", count).Str("reason", reason).Msg("notification abandoned after exhausting retries")
	}
}

func terminalReason(n model.Notification) string {
	if n.IsBroadcast() {
		return "broadcast"
	}
	return "delivered"
}
