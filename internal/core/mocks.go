package core

import (
	"context"
	"sync"
	"time"

	"fruitbox/internal/types"
)

// MockSessionResolver is a test double for the SessionResolver interface.
// Behavior is controlled via the ResolveFn field; calls are recorded for
// assertion.
type MockSessionResolver struct {
	mu sync.Mutex

	// ResolveFn controls the resolver's behavior. If nil, ResolveSession
	// returns (nil, "", nil).
	ResolveFn func(ctx context.Context, sessionID string) (*types.Actor, string, error)

	// Calls records every session ID passed to ResolveSession.
	Calls []string
}

// ResolveSession implements SessionResolver.
func (m *MockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*types.Actor, string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, sessionID)
	m.mu.Unlock()

	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, sessionID)
	}
	return nil, "", nil
}

// MockMetricsCollector is a test double for the MetricsCollector interface.
type MockMetricsCollector struct {
	mu sync.Mutex

	// Requests records every RecordRequest call.
	Requests []MetricsRequestCall
}

// MetricsRequestCall captures the arguments of one RecordRequest call.
type MetricsRequestCall struct {
	Method   string
	Endpoint string
	Status   string
	Duration time.Duration
}

// RecordRequest implements MetricsCollector.
func (m *MockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MetricsRequestCall{
		Method:   method,
		Endpoint: endpoint,
		Status:   status,
		Duration: duration,
	})
}
