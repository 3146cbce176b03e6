// Package app wires the worker's dependency graph with go.uber.org/fx, the
// same way the teacher's CommonModule/WorkerModule do, reshaped around the
// component set spec.md defines (no producer-facing API module: that
// surface is out of scope).
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/syncpulse-dev/notify-worker/internal/bus"
	"github.com/syncpulse-dev/notify-worker/internal/clock"
	"github.com/syncpulse-dev/notify-worker/internal/config"
	"github.com/syncpulse-dev/notify-worker/internal/db"
	"github.com/syncpulse-dev/notify-worker/internal/devices"
	"github.com/syncpulse-dev/notify-worker/internal/health"
	"github.com/syncpulse-dev/notify-worker/internal/logger"
	"github.com/syncpulse-dev/notify-worker/internal/metrics"
	"github.com/syncpulse-dev/notify-worker/internal/push"
	"github.com/syncpulse-dev/notify-worker/internal/redisconn"
	"github.com/syncpulse-dev/notify-worker/internal/wake"
	"github.com/syncpulse-dev/notify-worker/internal/worker"
)

// WorkerModule is the single Fx module for this binary: there is no
// separate API module, since spec.md's Non-goals drop the producer-facing
// query surface entirely.
var WorkerModule = fx.Options(
	fx.Provide(
		config.NewConfig,
		logger.NewLogger,

		db.NewPool,
		newGateway,
		newDBListener,

		wake.New,
		redisconn.NewClient,
		metrics.NewRegistry,

		newBusClient,
		newPushClient,

		newDeviceRegistry,
		newWorkerLoop,

		newHealthServer,
	),

	fx.Invoke(
		registerListener,
		registerWorkerLoop,
		registerHealthServer,
	),
)

func newGateway(pool *pgxpool.Pool, logger *zerolog.Logger) *db.Gateway {
	return db.NewGateway(pool, logger)
}

func newDBListener(cfg *config.Config, logger *zerolog.Logger) *db.Listener {
	return db.NewListener(cfg.Database.URL, db.NotifyChannel, logger)
}

func newBusClient(cfg *config.Config, logger *zerolog.Logger) *bus.Client {
	return bus.New(cfg.Bus.URL, cfg.Bus.ServiceToken, logger)
}

func newPushClient(cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) (*push.Client, error) {
	return push.New(context.Background(), cfg.FCM.ProjectID, cfg.FCM.CredentialsFile, rdb, logger)
}

// newDeviceRegistry wraps the DB-backed registry with the Redis cache-aside
// decorator only when Redis is configured (spec.md §6/§9: Redis is always
// optional, never a startup requirement).
func newDeviceRegistry(gw *db.Gateway, rdb *redis.Client, logger *zerolog.Logger) devices.Registry {
	primary := devices.NewDBRegistry(gw)
	if rdb == nil {
		return primary
	}
	return devices.NewCachedRegistry(primary, rdb, logger)
}

func newWorkerLoop(
	gw *db.Gateway,
	wakeCh *wake.Channel,
	busClient *bus.Client,
	pushClient *push.Client,
	registry devices.Registry,
	cfg *config.Config,
	logger *zerolog.Logger,
) *worker.Loop {
	return worker.New(gw, wakeCh, busClient, pushClient, registry, clock.New(), cfg.Worker, logger)
}

func newHealthServer(cfg *config.Config, gw *db.Gateway, listener *db.Listener, registry *prometheus.Registry, logger *zerolog.Logger) *health.Server {
	return health.NewServer(cfg, gw, listener, registry, logger)
}

// registerListener runs the DB LISTEN session for the lifetime of the
// process, waking the worker loop on every notification payload (spec.md
// §4.1/§4.2).
func registerListener(lc fx.Lifecycle, listener *db.Listener, wakeCh *wake.Channel) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			payloads := listener.Listen(ctx)
			go func() {
				for range payloads {
					wakeCh.TrySignal()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

// registerWorkerLoop runs the Worker Loop for the lifetime of the process.
// Two contexts govern it: runCtx, cancelled immediately on stop, which only
// tells Run to stop starting new cycles; and ioCtx, which stays live for
// cfg.Worker.ShutdownGrace so a cycle already dispatching rows gets that
// long to finish its DB and transport calls before being cut off (spec.md
// §5).
func registerWorkerLoop(lc fx.Lifecycle, loop *worker.Loop, cfg *config.Config, logger *zerolog.Logger) {
	var stopRun context.CancelFunc
	var stopIO context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx, ioCtx context.Context
			runCtx, stopRun = context.WithCancel(context.Background())
			ioCtx, stopIO = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				loop.Run(runCtx, ioCtx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if stopRun != nil {
				stopRun()
			}

			timer := time.NewTimer(cfg.Worker.ShutdownGrace)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				logger.Warn().Msg("shutdown grace period elapsed before worker loop drained")
				if stopIO != nil {
					stopIO()
				}
				<-done
			}
			if stopIO != nil {
				stopIO()
			}
			return nil
		},
	})
}

// registerHealthServer starts the Health Surface HTTP server (spec.md
// §4.9).
func registerHealthServer(lc fx.Lifecycle, server *health.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	})
}
