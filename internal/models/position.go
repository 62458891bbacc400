// Package models defines the core data types for roll evaluation:
// positions, quotes, roll candidates and evaluation outcomes.
package models

import (
	"math"
	"time"
)

// Right represents the option right of a contract.
type Right string

const (
	// RightCall represents a call option contract.
	RightCall Right = "C"
	// RightPut represents a put option contract.
	RightPut Right = "P"
)

// Valid returns true if the Right is one of the defined constants.
func (r Right) Valid() bool {
	return r == RightCall || r == RightPut
}

// ExpiryFormat is the wire format for option expirations (YYYYMMDD).
const ExpiryFormat = "20060102"

// Float returns a pointer to v. Optional numeric fields use *float64 so that
// "missing" is distinguishable from zero; NaN from a data source must be
// normalized to nil at the boundary, never stored.
func Float(v float64) *float64 {
	return &v
}

// FloatVal dereferences p, returning fallback when p is nil or NaN.
func FloatVal(p *float64, fallback float64) float64 {
	if p == nil || math.IsNaN(*p) {
		return fallback
	}
	return *p
}

// NormalizeFloat converts a possibly-NaN value into the optional
// representation: nil for NaN, a pointer otherwise.
func NormalizeFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return Float(v)
}

// Position represents one existing short option holding. It is owned by the
// caller for the duration of a single evaluation cycle and is not mutated
// during evaluation.
type Position struct {
	Symbol       string    `json:"symbol"`
	Strike       float64   `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	Right        Right     `json:"right"`
	Contracts    int       `json:"contracts"`
	EntryCredit  float64   `json:"entry_credit"`
	CurrentMark  *float64  `json:"current_mark,omitempty"`
	CurrentDelta *float64  `json:"current_delta,omitempty"`
}

// DTE returns calendar days from now until the position's expiration.
func (p *Position) DTE(now time.Time) int {
	return DaysUntil(now, p.Expiry)
}

// HasMark reports whether the position carries a usable current mark price.
func (p *Position) HasMark() bool {
	return p.CurrentMark != nil && !math.IsNaN(*p.CurrentMark)
}

// BuybackCost is the cost to close the position: the current mark, or zero
// when the mark is missing and the option is treated as expired/worthless.
func (p *Position) BuybackCost() float64 {
	return FloatVal(p.CurrentMark, 0)
}

// DaysUntil calculates the number of calendar days between two dates,
// truncated to UTC day boundaries. Negative when to precedes from.
func DaysUntil(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	return int(t.Sub(f).Hours() / 24)
}

// ParseExpiry parses a YYYYMMDD expiration string.
func ParseExpiry(s string) (time.Time, error) {
	return time.Parse(ExpiryFormat, s)
}
