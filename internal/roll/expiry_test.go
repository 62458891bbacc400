package roll

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
)

var expiryTestNow = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

func expiryAt(days int) string {
	return expiryTestNow.AddDate(0, 0, days).Format(models.ExpiryFormat)
}

func expiriesAt(days ...int) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, expiryAt(d))
	}
	return out
}

func newTestSelector(p provider.Provider) *ExpirySelector {
	s := NewExpirySelector(p, ExpiryConfig{
		RollForwardDays: 7,
		WindowMin:       30,
		WindowMax:       60,
		Venues:          []string{"SMART", "CBOE"},
	}, log.New(io.Discard, "", 0))
	s.now = func() time.Time { return expiryTestNow }
	return s
}

func TestExpirySelectorPicksClosestToTarget(t *testing.T) {
	p := new(provider.MockProvider)
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "SMART").
		Return(expiriesAt(20, 35, 40, 58, 70), nil).Once()

	s := newTestSelector(p)
	currentExpiry := expiryTestNow.AddDate(0, 0, 10)

	got, err := s.Next(context.Background(), "XYZ", currentExpiry, models.RightCall)
	require.NoError(t, err)
	// Target sits 17 days out; 20 and 70 fall outside the window, 35 is the
	// nearest of the survivors.
	assert.Equal(t, expiryAt(35), got)
	p.AssertExpectations(t)
}

func TestExpirySelectorHonorsRollForwardFloor(t *testing.T) {
	p := new(provider.MockProvider)
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "SMART").
		Return(expiriesAt(32, 44), nil).Once()

	s := newTestSelector(p)
	// Current expiry 30 days out puts the target at 37; 32 is inside the
	// window but before the target date.
	currentExpiry := expiryTestNow.AddDate(0, 0, 30)

	got, err := s.Next(context.Background(), "XYZ", currentExpiry, models.RightCall)
	require.NoError(t, err)
	assert.Equal(t, expiryAt(44), got)
}

func TestExpirySelectorFallsBackAcrossVenues(t *testing.T) {
	p := new(provider.MockProvider)
	// First venue lists a chain with nothing inside the window.
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "SMART").
		Return(expiriesAt(7, 14, 21), nil).Once()
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "CBOE").
		Return(expiriesAt(38), nil).Once()

	s := newTestSelector(p)
	currentExpiry := expiryTestNow.AddDate(0, 0, 10)

	got, err := s.Next(context.Background(), "XYZ", currentExpiry, models.RightCall)
	require.NoError(t, err)
	assert.Equal(t, expiryAt(38), got)
	p.AssertExpectations(t)
}

func TestExpirySelectorNoQualifyingExpiry(t *testing.T) {
	p := new(provider.MockProvider)
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, mock.Anything).
		Return(expiriesAt(7, 14, 90), nil).Twice()

	s := newTestSelector(p)
	currentExpiry := expiryTestNow.AddDate(0, 0, 10)

	_, err := s.Next(context.Background(), "XYZ", currentExpiry, models.RightCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestExpirySelectorAbortsWhenContextCanceled(t *testing.T) {
	p := new(provider.MockProvider)
	s := newTestSelector(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx, "XYZ", expiryTestNow.AddDate(0, 0, 10), models.RightCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExpiry)
	p.AssertNotCalled(t, "ListExpirations")
}

func TestExpirySelectorStopsTryingVenuesPastCeiling(t *testing.T) {
	p := new(provider.MockProvider)
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "SMART").
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(nil, errors.New("slow venue")).Once()

	s := NewExpirySelector(p, ExpiryConfig{
		RollForwardDays: 7,
		WindowMin:       30,
		WindowMax:       60,
		Timeout:         5 * time.Millisecond,
		Venues:          []string{"SMART", "CBOE"},
	}, discardLogger())
	s.now = func() time.Time { return expiryTestNow }

	_, err := s.Next(context.Background(), "XYZ", expiryTestNow.AddDate(0, 0, 10), models.RightCall)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExpiry)
	// The first venue consumed the whole budget; the second is never attempted.
	p.AssertNumberOfCalls(t, "ListExpirations", 1)
}

func TestExpirySelectorSkipsUnparseableEntries(t *testing.T) {
	p := new(provider.MockProvider)
	p.On("ListExpirations", mock.Anything, "XYZ", models.RightCall, "SMART").
		Return([]string{"garbage", "2026-09-18", expiryAt(35)}, nil).Once()

	s := newTestSelector(p)
	currentExpiry := expiryTestNow.AddDate(0, 0, 10)

	got, err := s.Next(context.Background(), "XYZ", currentExpiry, models.RightCall)
	require.NoError(t, err)
	assert.Equal(t, expiryAt(35), got)
}
