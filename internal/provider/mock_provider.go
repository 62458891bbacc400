package provider

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// MockProvider is a testify mock of Provider for tests.
type MockProvider struct {
	mock.Mock
}

var _ Provider = (*MockProvider)(nil)

// ListPositions mocks position listing.
func (m *MockProvider) ListPositions(ctx context.Context) ([]models.Position, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]models.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListExpirations mocks expiration listing.
func (m *MockProvider) ListExpirations(ctx context.Context, symbol string, right models.Right, venue string) ([]string, error) {
	args := m.Called(ctx, symbol, right, venue)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListStrikes mocks strike listing.
func (m *MockProvider) ListStrikes(ctx context.Context, symbol, expiry string, right models.Right, venue string) ([]float64, error) {
	args := m.Called(ctx, symbol, expiry, right, venue)
	if v := args.Get(0); v != nil {
		return v.([]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

// Subscribe mocks subscription creation.
func (m *MockProvider) Subscribe(ctx context.Context, c Contract, withGreeks bool) (Subscription, error) {
	args := m.Called(ctx, c, withGreeks)
	if v := args.Get(0); v != nil {
		return v.(Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// StaticSubscription serves a fixed tick, optionally after a number of empty
// reads to exercise polling, and records whether it was released.
type StaticSubscription struct {
	Tick  Tick
	Delay int

	mu       sync.Mutex
	reads    int
	released bool
}

var _ Subscription = (*StaticSubscription)(nil)

// Read returns the configured tick once Delay empty reads have been served.
func (s *StaticSubscription) Read() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads <= s.Delay {
		return Tick{}
	}
	return s.Tick
}

// Release marks the subscription released.
func (s *StaticSubscription) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

// Released reports whether Release was called.
func (s *StaticSubscription) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Reads reports how many times Read was called.
func (s *StaticSubscription) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
