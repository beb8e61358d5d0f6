package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bnema/hlsd/internal/adapter/http/middleware"
	"github.com/bnema/hlsd/internal/adapter/http/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	mux        *http.ServeMux
	handlers   *Handlers
	sseHandler *SSEHandler
	limiter    *ratelimit.ClientLimiter
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	handler    http.Handler
}

func NewServer(hlsSvc HLSService, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		handlers:   NewHandlers(hlsSvc, log),
		sseHandler: NewSSEHandler(hlsSvc, log),
		limiter:    ratelimit.NewClientLimiter(1, 5, 10*time.Minute),
		gatherer:   gatherer,
		logger:     log,
	}

	s.registerRoutes()
	s.handler = middleware.Recovery(log, middleware.Logging(log, middleware.SecurityHeaders(s.limiter.Middleware(s.mux))))

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/media/{id}/hls", s.handlers.Status())
	s.mux.HandleFunc("POST /api/media/{id}/hls", s.handlers.Resubmit())
	s.mux.HandleFunc("GET /api/media/{id}/hls/inspect", s.handlers.Inspect())
	s.mux.HandleFunc("DELETE /api/media/{id}/hls/progress", s.handlers.ClearProgress())
	s.mux.HandleFunc("GET /api/media/{id}/hls/events", s.sseHandler.Events())

	s.mux.HandleFunc("GET /healthz", s.handlers.Health())
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
