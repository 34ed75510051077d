// Package admin implements the additive control-plane HTTP surface of
// SPEC_FULL.md §4.7: health and route introspection, separate from
// the reactive core's own request/response pipeline. It generalises the
// teacher's hand-rolled internal/metrics.go ServeMux into a small
// github.com/go-chi/chi/v5 router, using chi's middleware, render and
// cors packages - all of which the teacher's go.mod already carried as
// indirect dependencies.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"httpcore/internal/config"
	"httpcore/internal/routing"
)

// Server is the admin control plane: a standalone HTTP/1.1 server
// (net/http, not internal/http1 - it never needs HTTP/2 or WebSocket
// upgrades) exposing /healthz and /routes.
type Server struct {
	cfg        config.AdminConfig
	extractor  *routing.RouteExtractor
	logger     *zap.Logger
	httpServer *http.Server

	startedAt time.Time
	healthy   func() bool
}

// New builds an admin Server bound to router's introspection surface.
// healthy, if non-nil, is consulted by /healthz to report readiness
// beyond "the process is alive"; a nil healthy always reports ready.
func New(cfg config.AdminConfig, router *routing.Router, logger *zap.Logger, healthy func() bool) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		extractor: routing.NewRouteExtractor(router),
		logger:    logger,
		startedAt: time.Now(),
		healthy:   healthy,
	}
}

// Serve runs the admin surface until ctx is cancelled. It is a no-op
// returning nil immediately when cfg.Listen is empty, matching the
// teacher's "disabled when address is blank" convention for its own
// metrics server.
func (s *Server) Serve(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Listen) == "" {
		return nil
	}

	s.httpServer = &http.Server{Addr: s.cfg.Listen, Handler: s.mux()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("admin surface listening", zap.String("addr", s.cfg.Listen))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin: serve %s: %w", s.cfg.Listen, err)
	}
	return nil
}

// mux builds the chi router Serve installs; split out so tests can drive
// the handlers directly via httptest without binding a real listener.
func (s *Server) mux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/routes", s.handleRoutes)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		s.logger.Debug("admin request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("requestID", middleware.GetReqID(req.Context())),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	UptimeS float64 `json:"uptimeSeconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ready := s.healthy == nil || s.healthy()
	resp := healthResponse{Status: "ok", UptimeS: time.Since(s.startedAt).Seconds()}
	if !ready {
		resp.Status = "unavailable"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

type routeResponse struct {
	Routes []routing.RouteInfo `json:"routes"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, routeResponse{Routes: s.extractor.All()})
}
