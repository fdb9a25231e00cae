// Package core provides the API chassis for WayraFrost. It creates a chi
// router and enforces cross-cutting concerns (panic recovery, request IDs,
// logging, CORS, compression and metrics) before requests reach the
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/config"
)

// MetricsCollector records API request telemetry. route is the matched chi
// pattern, never the raw path.
type MetricsCollector interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// RouteRegistrar mounts a group of handlers under /api.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies of the HTTP surface so tests can inject
// fakes for each of them.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	HealthProbes   []HealthProbe
	// HealthInfo contributes service-specific fields to GET /health.
	HealthInfo func() map[string]any

	// RateLimitStore backs the per-client limit on alert endpoints. Nil
	// disables limiting.
	RateLimitStore RateLimitStore

	APIRouteRegistrars []RouteRegistrar

	router         *chi.Mux
	trustedProxies []netip.Prefix
}

// NewServer validates its inputs and prepares an empty router. The caller
// mounts routes with MountRoutes once registrars are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	proxies, err := parseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	return &Server{
		Config:         cfg,
		Logger:         logger,
		Validator:      NewValidator(logger),
		router:         chi.NewRouter(),
		trustedProxies: proxies,
	}, nil
}

// parseTrustedProxies accepts bare IPs and CIDR prefixes.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases resources owned by the server. Probes holding
// connections are closed if they implement io.Closer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	for _, p := range s.HealthProbes {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				s.Logger.ErrorContext(ctx, "error closing health probe", "probe", p.Name(), "error", err)
				return fmt.Errorf("closing probe %s: %w", p.Name(), err)
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
