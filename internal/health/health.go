package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vertbot/internal/logger"
	"vertbot/internal/types"
)

type Scheduler interface {
	Healthy() (bool, string)
	Health() types.SchedulerHealth
	ForceRestart(ctx context.Context) error
}

type Monitor interface {
	Status() types.MonitorStatus
}

type ReportState interface {
	State(ctx context.Context) types.ReportState
}

// Server exposes scheduler and monitor health to operators.
type Server struct {
	sched   Scheduler
	monitor Monitor
	reports ReportState
	server  *http.Server
}

func New(addr string, sched Scheduler, monitor Monitor, reports ReportState) *Server {
	s := &Server{sched: sched, monitor: monitor, reports: reports}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", s.healthz)
	router.POST("/scheduler/restart", s.restart)
	return router
}

func (s *Server) healthz(c *gin.Context) {
	ok, reason := s.sched.Healthy()
	status := http.StatusOK
	state := "UP"
	if !ok {
		status = http.StatusServiceUnavailable
		state = "DEGRADED"
	}
	body := gin.H{
		"status":    state,
		"scheduler": s.sched.Health(),
		"monitor":   s.monitor.Status(),
	}
	if reason != "" {
		body["reason"] = reason
	}
	if s.reports != nil {
		body["report"] = s.reports.State(c.Request.Context())
	}
	c.JSON(status, body)
}

func (s *Server) restart(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.sched.ForceRestart(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Scheduler restart via health endpoint failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "ERROR", "error": err.Error()})
		return
	}
	logger.Warn(ctx, "Scheduler restarted via health endpoint", "remote", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "RESTARTED", "scheduler": s.sched.Health()})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Probes are frequent; only failures and slow requests are interesting.
		if c.Writer.Status() >= 400 || duration > time.Second {
			logger.Info(c.Request.Context(), "HTTP request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration_ms", duration.Milliseconds())
		}
	}
}
