// Package health implements the Health Surface of spec.md §4.9: the one
// HTTP-facing piece left in scope, exposing liveness and Prometheus metrics
// for an otherwise externally-invisible background worker.
package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/syncpulse-dev/notify-worker/internal/config"
)

// pingTimeout bounds how long GET /health waits on the DB before reporting
// unhealthy rather than hanging the check itself.
const pingTimeout = 2 * time.Second

// pinger is the narrow DB Gateway slice the liveness check needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// listenerStatus reports whether the DB listener's session is currently
// down (it keeps reconnecting in the background).
type listenerStatus interface {
	Crashed() bool
}

// Server is the Gin-based Health Surface, matching the teacher's HTTP
// server shape with the producer-facing CRUD routes removed.
type Server struct {
	*http.Server
	logger zerolog.Logger
}

// NewServer builds the health/metrics server. registry is the process-wide
// Prometheus registry constructed at startup (internal/metrics.NewRegistry).
func NewServer(cfg *config.Config, db pinger, listener listenerStatus, registry *prometheus.Registry, logger *zerolog.Logger) *Server {
	log := logger.With().Str("component", "health_server").Logger()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "reason": "database unreachable"})
			return
		}
		if listener.Crashed() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "reason": "listener disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{
		Server: &http.Server{
			Addr:    ":" + cfg.Health.Port,
			Handler: router,
		},
		logger: log,
	}
}

// Start begins serving in the background, returning the error if the
// listener cannot bind (the fx lifecycle hook treats that as a startup
// failure).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()
	s.logger.Info().Str("addr", s.Addr).Msg("health server listening")
	return nil
}
