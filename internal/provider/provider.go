// Package provider defines the market data boundary. The engine consumes
// everything through the Provider interface; broker connectivity itself
// (sessions, qualification, subscription plumbing) lives behind it.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// DefaultVenues is the fallback routing order for contract lookups and
// market data subscriptions.
var DefaultVenues = []string{"SMART", "CBOE"}

// ErrAllVenuesFailed is returned when every venue in the fallback order
// failed to produce a result.
var ErrAllVenuesFailed = errors.New("all venues failed")

// Contract identifies one instrument for a market data request. A stock
// contract leaves Expiry empty, Strike zero and Right unset.
type Contract struct {
	Symbol string
	Expiry string // YYYYMMDD, options only
	Strike float64
	Right  models.Right
	Venue  string
}

// IsStock reports whether the contract addresses the underlying rather than
// an option.
func (c Contract) IsStock() bool {
	return c.Expiry == "" && !c.Right.Valid()
}

// StockContract builds a contract for the underlying on the given venue.
func StockContract(symbol, venue string) Contract {
	return Contract{Symbol: symbol, Venue: venue}
}

// Tick is one raw market data snapshot read from a live subscription.
// Fields the venue has not delivered yet are nil.
type Tick struct {
	Bid   *float64
	Ask   *float64
	Last  *float64
	Close *float64
	Delta *float64
	Gamma *float64
	Theta *float64
	IV    *float64
}

// HasGreeks reports whether the greeks payload has arrived, which the
// fetcher detects by a non-nil delta.
func (t Tick) HasGreeks() bool {
	return t.Delta != nil
}

// Subscription is a live market data stream for one contract. Release must
// be called on every exit path; leaked subscriptions exhaust provider limits.
type Subscription interface {
	// Read returns the latest snapshot. It never blocks; callers poll.
	Read() Tick
	// Release cancels the subscription. Safe to call more than once.
	Release()
}

// Provider is the abstract market data source.
//
// Implementations are not required to be safe for concurrent use; the
// orchestrator evaluates positions sequentially and only the quote cache is
// shared across goroutines.
type Provider interface {
	// ListPositions returns the current short option holdings.
	ListPositions(ctx context.Context) ([]models.Position, error)

	// ListExpirations returns the available expirations (YYYYMMDD) for the
	// underlying and right on one venue.
	ListExpirations(ctx context.Context, symbol string, right models.Right, venue string) ([]string, error)

	// ListStrikes returns the strike universe for (symbol, expiry, right) on
	// one venue, sorted ascending.
	ListStrikes(ctx context.Context, symbol, expiry string, right models.Right, venue string) ([]float64, error)

	// Subscribe opens a live market data subscription for the contract.
	// withGreeks requests the greeks payload for option contracts.
	Subscribe(ctx context.Context, c Contract, withGreeks bool) (Subscription, error)
}

// TryVenues runs op against each venue in priority order and returns the
// first successful result. Each fetch site used to carry its own copy of
// this loop; it is one combinator now so the short-circuit behavior stays
// uniform.
func TryVenues[T any](venues []string, op func(venue string) (T, error)) (T, error) {
	var zero T
	if len(venues) == 0 {
		venues = DefaultVenues
	}
	var lastErr error
	for _, v := range venues {
		res, err := op(v)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllVenuesFailed, lastErr)
}
