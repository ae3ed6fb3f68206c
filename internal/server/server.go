package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"EthnoCards/internal/usecase"
)

// Poster posts one card to a channel.
type Poster interface {
	SelectAndPost(ctx context.Context, ch usecase.Channel) usecase.PostResult
}

// Enricher runs one candidate batch.
type Enricher interface {
	RunBatch(ctx context.Context, limit int) (usecase.BatchSummary, error)
}

// Readiness reports whether reference data is loaded.
type Readiness interface {
	Loaded() bool
}

// Deps wires the HTTP triggers to the use cases.
type Deps struct {
	Poster      Poster
	Enricher    Enricher
	Catalog     Readiness
	Channels    []usecase.Channel
	EnrichLimit int
	Logger      *slog.Logger
}

// Server exposes the task triggers over HTTP.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router. Call gin.SetMode before New to silence debug output.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.EnrichLimit <= 0 {
		deps.EnrichLimit = 1
	}
	s := &Server{deps: deps, logger: logger}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), s.requestLog())

	r.POST("/post-random", s.postRandom)
	r.POST("/enrich", s.enrich)
	r.GET("/healthz", s.healthz)
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"ok": false, "error": "method not allowed"})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type channelResult struct {
	usecase.Channel
	usecase.PostResult
}

func (s *Server) postRandom(c *gin.Context) {
	if s.deps.Poster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "posting not configured"})
		return
	}
	results := make([]channelResult, 0, len(s.deps.Channels))
	for _, ch := range s.deps.Channels {
		res := s.deps.Poster.SelectAndPost(c.Request.Context(), ch)
		results = append(results, channelResult{Channel: ch, PostResult: res})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "results": results})
}

type enrichResponse struct {
	OK bool `json:"ok"`
	usecase.BatchSummary
}

func (s *Server) enrich(c *gin.Context) {
	if s.deps.Enricher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "enrichment not configured"})
		return
	}
	limit := parseLimit(c.Query("limit"), s.deps.EnrichLimit)

	sum, err := s.deps.Enricher.RunBatch(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("enrich request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, enrichResponse{OK: true, BatchSummary: sum})
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Catalog == nil || !s.deps.Catalog.Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func parseLimit(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, usecase.MaxPickLimit)
}
