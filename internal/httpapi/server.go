package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Bryndin/video-upscaler/internal/config"
	"github.com/Bryndin/video-upscaler/internal/diagnostics"
	"github.com/Bryndin/video-upscaler/internal/jobs"
	"github.com/Bryndin/video-upscaler/internal/pipeline"
)

type Server struct {
	queue   *jobs.Queue
	bus     *pipeline.Bus
	cfg     *config.Config
	checker *diagnostics.Checker

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithChecker(checker *diagnostics.Checker) Option {
	return func(s *Server) {
		s.checker = checker
	}
}

func NewServer(queue *jobs.Queue, bus *pipeline.Bus, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		queue: queue,
		bus:   bus,
		cfg:   cfg,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobAction)
	s.mux.HandleFunc("/api/models", s.handleModels)
	s.mux.HandleFunc("/api/status", s.handleStatus)
}
