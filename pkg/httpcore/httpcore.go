// Package httpcore provides a small public surface for reusing this
// repository as a library. The implementation lives in internal/ and may
// change without notice.
package httpcore

import (
	"context"

	"go.uber.org/zap"

	"httpcore/internal/admin"
	"httpcore/internal/config"
	"httpcore/internal/routing"
	"httpcore/internal/server"
	"httpcore/internal/telemetry"
)

// --- Config ---

type Config = config.Config

type TLSConfig = config.TLSConfig

type HTTP2Config = config.HTTP2Config

type CompressionConfig = config.CompressionConfig

type WebSocketConfig = config.WebSocketConfig

type AdminConfig = config.AdminConfig

// LoadConfig loads the YAML configuration document at path.
// Note: config.LoadConfig returns a pointer.
func LoadConfig(path string) (*Config, error) { return config.LoadConfig(path) }

// DefaultConfig returns a Config populated with sane defaults.
func DefaultConfig() *Config { return config.Default() }

// --- Routing ---

type Router = routing.Router

type RouteManager = routing.RouteManager

type RouteExtractor = routing.RouteExtractor

type RouteInfo = routing.RouteInfo

// NewRouter creates an empty Router.
func NewRouter() *Router { return routing.NewRouter() }

// NewRouteExtractor returns an extractor bound to r.
func NewRouteExtractor(r *Router) *RouteExtractor { return routing.NewRouteExtractor(r) }

// --- Controller / Server ---

type Controller = server.Controller

type Resource = server.Resource

type Error = server.Error

type ErrorKind = server.ErrorKind

type Server = server.Server

// NewServer builds a Server from cfg, router and controller. It does not
// start listening - call Serve for that.
func NewServer(cfg *Config, router *Router, controller Controller, logger *zap.Logger) (*Server, error) {
	return server.New(cfg, router, controller, logger)
}

// --- Admin control plane ---

type AdminServer = admin.Server

// NewAdminServer builds the additive control-plane HTTP surface bound to
// router's introspection. healthy, if non-nil, backs /healthz's
// readiness beyond process liveness.
func NewAdminServer(cfg AdminConfig, router *Router, logger *zap.Logger, healthy func() bool) *AdminServer {
	return admin.New(cfg, router, logger, healthy)
}

// --- Telemetry ---

// EnableMetrics registers and enables the process's Prometheus counters.
func EnableMetrics() { telemetry.Enable() }

// ServeMetrics serves /metrics on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string) error { return telemetry.Serve(ctx, addr) }
