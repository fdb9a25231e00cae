package core

import (
	"context"
	"sync"
	"time"
)

// MockRateLimitStore implements RateLimitStore for tests. Result and Err are
// returned unless IncrementAndCheckFunc is set.
type MockRateLimitStore struct {
	Result                RateLimitResult
	Err                   error
	IncrementAndCheckFunc func(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)

	mu    sync.Mutex
	Calls []RateLimitCall
}

// RateLimitCall records one IncrementAndCheck invocation.
type RateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

func (m *MockRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{Key: key, Limit: limit, Window: window})
	m.mu.Unlock()

	if m.IncrementAndCheckFunc != nil {
		return m.IncrementAndCheckFunc(ctx, key, limit, window)
	}
	return m.Result, m.Err
}

// MockMetricsCollector records ObserveHTTP calls.
type MockMetricsCollector struct {
	mu       sync.Mutex
	Requests []RecordedRequest
}

// RecordedRequest is one observed request.
type RecordedRequest struct {
	Method string
	Route  string
	Status int
}

func (m *MockMetricsCollector) ObserveHTTP(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, RecordedRequest{Method: method, Route: route, Status: status})
}

// Recorded returns a copy of the observed requests.
func (m *MockMetricsCollector) Recorded() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.Requests...)
}

var (
	_ RateLimitStore   = (*MockRateLimitStore)(nil)
	_ MetricsCollector = (*MockMetricsCollector)(nil)
)
