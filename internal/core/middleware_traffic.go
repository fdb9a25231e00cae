package core

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/types"
)

// RateLimit limits requests per client address using s.RateLimitStore and
// the configured alert limit. It is applied to the alert routes only, since
// each accepted request may cost an SMS. Store errors fail open.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, window := s.alertLimit()
		if s.RateLimitStore == nil || limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := s.clientAddress(r)
		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, window)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error",
				slog.String("client", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)
		if !result.Allowed {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimited,
				"Demasiadas solicitudes de alerta. Intente más tarde.", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) alertLimit() (int, time.Duration) {
	if s.Config == nil {
		return 0, 0
	}
	window := s.Config.Server.AlertRateWindow
	if window <= 0 {
		window = time.Hour
	}
	return s.Config.Server.AlertRateLimit, window
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// clientAddress identifies the caller for rate limiting. X-Forwarded-For is
// only believed when the connection comes from a trusted proxy; the hops are
// then walked right to left and the first untrusted one is the client.
// Anything left of it was written by the client and is ignored.
func (s *Server) clientAddress(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !s.trusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (s *Server) trusted(ip string) bool {
	if len(s.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// MemoryRateLimitStore is a fixed-window counter per key.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	windows map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimitStore creates a store. A nil clock uses real time.
func NewMemoryRateLimitStore(clock clockwork.Clock) *MemoryRateLimitStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRateLimitStore{clock: clock, windows: make(map[string]*rateWindow)}
}

// IncrementAndCheck implements RateLimitStore. Expired windows are pruned
// as they are encountered.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.prune(now)
		w = &rateWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

func (m *MemoryRateLimitStore) prune(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
