// Package api exposes one rank's runtime session over HTTP: generation,
// engine introspection, health, and Prometheus metrics.
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trellisml/trellis/internal/logger"
	"github.com/trellisml/trellis/pkg/runtime"
)

type Server struct {
	session *runtime.Session
	log     logger.Logger
	clock   func() time.Time
	started time.Time

	// Sessions are single-caller and their stream is FIFO, so generation
	// requests are serialized here.
	mu sync.Mutex
}

func NewServer(session *runtime.Session, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		session: session,
		log:     log.With("component", "api"),
		clock:   time.Now,
		started: time.Now(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/engine", s.handleEngineInfo)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.session == nil {
		return writeServerError(c, "runtime session not configured")
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	genReq, err := req.toGeneration()
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error(), "")
		}
		return writeServerError(c, err.Error())
	}

	s.mu.Lock()
	res, err := s.session.Generate(c.Request().Context(), genReq)
	s.mu.Unlock()
	if err != nil {
		var uerr *runtime.UnsupportedWordListError
		if errors.As(err, &uerr) {
			return writeBadRequest(c, uerr.Error(), uerr.Field)
		}
		s.log.Error("generate failed", "error", err)
		return writeServerError(c, err.Error())
	}

	return c.JSON(http.StatusOK, GenerateResponse{
		ID:        newGenerationID(),
		Object:    "generation",
		Created:   s.clock().Unix(),
		OutputIDs: res.OutputIDs,
		Usage: Usage{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TotalTokens:      res.PromptTokens + res.CompletionTokens,
		},
	})
}

func (s *Server) handleEngineInfo(c *echo.Context) error {
	if s.session == nil {
		return writeServerError(c, "runtime session not configured")
	}
	cfg := s.session.Engine().Config
	m := s.session.Mapping()

	return c.JSON(http.StatusOK, EngineInfoResponse{
		Architecture: cfg.Pretrained.Architecture,
		DType:        cfg.Pretrained.DType,
		Version:      cfg.Version,
		Rank:         s.session.Engine().Rank(),
		Device:       int(s.session.Device()),
		Mode:         s.session.Mode().String(),
		WorldSize:    m.WorldSize,
		TPSize:       m.TPSize,
		PPSize:       m.PPSize,
		MaxInputLen:  cfg.Build.MaxInputLen,
		MaxSeqLen:    cfg.Build.MaxSeqLen,
		MaxBatchSize: cfg.Build.MaxBatchSize,
		MaxBeamWidth: cfg.Build.MaxBeamWidth,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: s.clock().Sub(s.started).Seconds(),
	}
	if s.session != nil {
		resp.Rank = s.session.Mapping().Rank
		resp.Device = int(s.session.Device())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
