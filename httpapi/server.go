// Package httpapi exposes the question-answering service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/biflow-io/biflow/bi"
)

// Service is the part of the question-answering service the HTTP layer
// depends on.
type Service interface {
	Ask(ctx context.Context, question string) (*bi.Answer, error)
	SchemaText(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	svc      Service
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// NewServer builds the router. gatherer may be nil to disable /metrics.
func NewServer(svc Service, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{svc: svc, logger: logger, gatherer: gatherer, engine: engine}
	engine.Use(s.requestID(), s.requestLog())

	engine.GET("/healthz", s.handleHealth)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1")
	v1.POST("/ask", s.handleAsk)
	v1.GET("/schema", s.handleSchema)

	return s
}

// Handler returns the server's http.Handler for mounting or testing.
func (s *Server) Handler() http.Handler { return s.engine }

// requestID assigns each request an identifier, honoring one supplied by
// the client.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAsk runs the full pipeline for one question. Query execution
// failures still return 200 with the failure inside result; only
// pipeline-level failures (SQL generation, invalid question) are HTTP
// errors.
func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	answer, err := s.svc.Ask(c.Request.Context(), req.Question)
	if err != nil {
		s.logger.Error("ask failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (s *Server) handleSchema(c *gin.Context) {
	text, err := s.svc.SchemaText(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schema": text})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
