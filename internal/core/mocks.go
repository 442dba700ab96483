package core

import (
	"context"
	"sync"
	"time"

	"profilehub/internal/types"
)

// MockAuthenticator is an Authenticator for tests. ResolveTokenFunc wins over
// Err, which wins over Actor.
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// CallCount returns the number of ResolveToken calls.
func (m *MockAuthenticator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// RequestMetric is one call recorded by MockMetricsCollector.
type RequestMetric struct {
	Method, Endpoint, Status string
	Duration                 time.Duration
}

// MockMetricsCollector records RecordRequest calls.
type MockMetricsCollector struct {
	mu    sync.Mutex
	Calls []RequestMetric
}

func (m *MockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RequestMetric{method, endpoint, status, duration})
}

// Snapshot returns a copy of the recorded calls.
func (m *MockMetricsCollector) Snapshot() []RequestMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestMetric(nil), m.Calls...)
}

// MockOperationGate is an OperationGate returning a fixed verdict or error.
type MockOperationGate struct {
	Verdict types.Verdict
	Err     error

	mu      sync.Mutex
	Checked []types.OperationContext
}

func (m *MockOperationGate) Validate(_ context.Context, _ types.Subject, name types.OperationName, opCtx types.OperationContext) (types.Verdict, error) {
	m.mu.Lock()
	m.Checked = append(m.Checked, opCtx)
	m.mu.Unlock()

	if m.Err != nil {
		return types.Verdict{}, m.Err
	}
	v := m.Verdict
	v.Operation = name
	return v, nil
}
