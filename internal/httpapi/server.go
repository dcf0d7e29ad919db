package httpapi

import (
	"errors"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"DCASentinel/internal/model"
	"DCASentinel/internal/scheduler"
)

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	Trigger() error
	Last() (*model.CycleReport, error)
	NextRun() time.Time
	Running() bool
}

type Server struct {
	R      *gin.Engine
	Ctrl   Controller
	Logger *zap.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type lastCycleResponse struct {
	Report *model.CycleReport `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type scheduleResponse struct {
	NextRun *time.Time `json:"next_run"`
	Running bool       `json:"running"`
}

// NewServer wires the router and middleware.
func NewServer(ctrl Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := gin.New()

	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})
	g.Use(gin.Recovery())

	s := &Server{R: g, Ctrl: ctrl, Logger: logger}

	g.GET("/healthz", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })
	g.GET("/cycles/last", s.getLastCycle)
	g.POST("/cycles", s.triggerCycle)
	g.GET("/schedule/next", s.getSchedule)

	return s
}

func (s *Server) getLastCycle(c *gin.Context) {
	report, err := s.Ctrl.Last()
	if report == nil && err == nil {
		c.JSON(http.StatusNotFound, apiError{Code: "not_found", Message: "no cycle has run yet"})
		return
	}
	resp := lastCycleResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) triggerCycle(c *gin.Context) {
	err := s.Ctrl.Trigger()
	switch {
	case errors.Is(err, scheduler.ErrCycleInProgress):
		c.JSON(http.StatusConflict, apiError{Code: "cycle_in_progress", Message: err.Error()})
	case err != nil:
		s.Logger.Error("internal_error", zap.String("where", "Trigger"), zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"started": true})
	}
}

func (s *Server) getSchedule(c *gin.Context) {
	resp := scheduleResponse{Running: s.Ctrl.Running()}
	if next := s.Ctrl.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	c.JSON(http.StatusOK, resp)
}
