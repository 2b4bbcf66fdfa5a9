package control

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

const defaultTailLines = 50

// Server is the HTTP control listener, bound to loopback by default.
type Server struct {
	addr    string
	backend Backend
	engine  *gin.Engine
	logger  logging.Logger
}

// NewServer wires the API routes. zapLogger feeds the gin request and
// recovery middleware.
func NewServer(addr string, backend Backend, zapLogger *zap.Logger, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(zapLogger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(zapLogger, true))

	s := &Server{
		addr:    addr,
		backend: backend,
		engine:  engine,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)

	api := s.engine.Group("/api/v1")
	api.GET("/programs", s.handleStatusAll)
	api.GET("/programs/:name", s.handleStatus)
	api.POST("/programs/:name/start", s.handleStart)
	api.POST("/programs/:name/stop", s.handleStop)
	api.POST("/programs/:name/restart", s.handleRestart)
	api.GET("/programs/:name/log", s.handleTailLog)
	api.GET("/events", s.handleEvents)
	api.POST("/reload", s.handleReload)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Infof("Control server listening, addr: %s", s.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return errors.NewNetworkError("control server failed", err).WithContext("addr", s.addr)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("Control server shutdown error: %v", err)
	}
	s.logger.Infof("Control server stopped")
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatusAll(c *gin.Context) {
	all := s.backend.StatusAll()

	statuses := make([]ProgramStatus, 0, len(all))
	for name, info := range all {
		statuses = append(statuses, statusFromInfo(name, info))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	c.JSON(http.StatusOK, statuses)
}

func (s *Server) handleStatus(c *gin.Context) {
	name := c.Param("name")
	info, err := s.backend.Status(name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusFromInfo(name, info))
}

func (s *Server) handleStart(c *gin.Context) {
	s.runOperation(c, s.backend.Start)
}

func (s *Server) handleStop(c *gin.Context) {
	s.runOperation(c, s.backend.Stop)
}

func (s *Server) handleRestart(c *gin.Context) {
	s.runOperation(c, s.backend.Restart)
}

func (s *Server) runOperation(c *gin.Context, operation func(context.Context, string) error) {
	name := c.Param("name")
	if err := operation(c.Request.Context(), name); err != nil {
		s.respondError(c, err)
		return
	}

	info, err := s.backend.Status(name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusFromInfo(name, info))
}

func (s *Server) handleTailLog(c *gin.Context) {
	name := c.Param("name")
	stream := c.DefaultQuery("stream", "stdout")

	lines := defaultTailLines
	if raw := c.Query("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "lines must be a positive integer"})
			return
		}
		lines = parsed
	}

	tail, err := s.backend.TailLog(name, stream, lines)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LogLines{Program: name, Stream: stream, Lines: tail})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	events := s.backend.Events(limit, c.Query("program"))
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleReload(c *gin.Context) {
	diff, err := s.backend.Reload(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ReloadResult{
		Added:             diff.Added,
		Removed:           diff.Removed,
		Changed:           diff.Changed,
		SupervisorChanged: diff.SupervisorChanged,
	})
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFoundError(err):
		status = http.StatusNotFound
	case errors.IsConflictError(err):
		status = http.StatusConflict
	case errors.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.IsConfigError(err):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}
