package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/idealad/adsplice/internal/media"
	"github.com/idealad/adsplice/internal/playback"
	"github.com/idealad/adsplice/internal/session"
	"github.com/idealad/adsplice/internal/stitch"
)

const Version = "0.1.0"

type Server struct {
	httpServer *http.Server
	limiter    *RateLimiter
	logger     *slog.Logger
}

type ServerConfig struct {
	Host           string
	Port           int
	Sessions       *session.Manager
	Store          media.Store
	PlaybackServer *playback.Server
	Stitch         *stitch.Service
	Hub            Subscriber
	Logger         *slog.Logger
	StartTime      time.Time
	AllowedOrigins []string
	MaxUploadBytes int64
	UploadLimiter  *RateLimiter
	StorageType    string
	CloudMode      string
	PingInterval   time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
		limiter: cfg.UploadLimiter,
		logger:  cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
