// Package roll implements the roll-candidate selection and scoring engine:
// replacement expiry selection, delta-aware strike sampling, candidate
// scoring and the per-position orchestration that ties them together.
package roll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
)

// ErrNoExpiry is returned when no replacement expiration satisfies the DTE
// window and roll-forward constraints on any venue.
var ErrNoExpiry = errors.New("no suitable expiry")

// ExpiryConfig tunes replacement-expiry selection.
type ExpiryConfig struct {
	// RollForwardDays is how far past the current expiration the replacement
	// should land (default 7).
	RollForwardDays int
	// WindowMin/WindowMax bound the replacement's days-to-expiration
	// measured from today (defaults 30/60).
	WindowMin int
	WindowMax int
	// Timeout bounds total wall-clock time across all venue attempts
	// (default 30s); one slow venue must not hang the batch.
	Timeout time.Duration
	// Venues is the fallback order for expiration lookups.
	Venues []string
}

func (c *ExpiryConfig) normalize() {
	if c.RollForwardDays <= 0 {
		c.RollForwardDays = 7
	}
	if c.WindowMin <= 0 {
		c.WindowMin = 30
	}
	if c.WindowMax <= 0 {
		c.WindowMax = 60
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if len(c.Venues) == 0 {
		c.Venues = provider.DefaultVenues
	}
}

// ExpirySelector picks the replacement expiration for a roll.
type ExpirySelector struct {
	provider provider.Provider
	cfg      ExpiryConfig
	logger   *log.Logger
	now      func() time.Time
}

// NewExpirySelector creates an ExpirySelector.
func NewExpirySelector(p provider.Provider, cfg ExpiryConfig, logger *log.Logger) *ExpirySelector {
	cfg.normalize()
	return &ExpirySelector{provider: p, cfg: cfg, logger: logger, now: time.Now}
}

// Next returns the expiration (YYYYMMDD) closest to currentExpiry plus the
// roll-forward distance, among expirations whose DTE falls inside the window
// and whose date is on or after the target. Returns ErrNoExpiry when nothing
// qualifies within the time ceiling.
func (s *ExpirySelector) Next(ctx context.Context, symbol string, currentExpiry time.Time, right models.Right) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	target := currentExpiry.AddDate(0, 0, s.cfg.RollForwardDays)
	now := s.now()

	expiry, err := provider.TryVenues(s.cfg.Venues, func(venue string) (string, error) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		expirations, err := s.provider.ListExpirations(ctx, symbol, right, venue)
		if err != nil {
			return "", err
		}
		best, found := pickExpiry(expirations, now, target, s.cfg.WindowMin, s.cfg.WindowMax)
		if !found {
			// This venue listed expirations but none qualify; the next venue
			// may carry a different chain.
			return "", ErrNoExpiry
		}
		return best, nil
	})
	if err != nil {
		return "", fmt.Errorf("select expiry for %s: %w", symbol, ErrNoExpiry)
	}
	return expiry, nil
}

// pickExpiry filters expirations to the DTE window and on/after-target
// constraint, then minimizes absolute day-distance to the target date.
func pickExpiry(expirations []string, now, target time.Time, windowMin, windowMax int) (string, bool) {
	best := ""
	bestDiff := 0
	for _, e := range expirations {
		date, err := models.ParseExpiry(e)
		if err != nil {
			continue
		}
		dte := models.DaysUntil(now, date)
		if dte < windowMin || dte > windowMax {
			continue
		}
		if date.Before(target) {
			continue
		}
		diff := models.DaysUntil(target, date)
		if diff < 0 {
			diff = -diff
		}
		if best == "" || diff < bestDiff {
			best, bestDiff = e, diff
		}
	}
	return best, best != ""
}
