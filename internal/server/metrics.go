package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/metrics"
)

// MetricsServer exposes collectors on a listener of their own, for
// processes such as the worker that serve no API.
type MetricsServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
}

func NewMetricsServer(addr string, m *metrics.Metrics, log zerolog.Logger) *MetricsServer {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(m.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return &MetricsServer{
		engine: engine,
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (s *MetricsServer) Handler() http.Handler {
	return s.engine
}

func (s *MetricsServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("metrics server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics listen: %w", err)
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
