package models

// Quote is a point-in-time snapshot for one contract. For the underlying
// stock only the price fields are populated. Quotes never mutate after
// creation; the cache replaces entries wholesale.
type Quote struct {
	Symbol string  `json:"symbol"`
	Strike float64 `json:"strike,omitempty"`
	Expiry string  `json:"expiry,omitempty"` // YYYYMMDD, options only
	Right  Right   `json:"right,omitempty"`

	Bid   *float64 `json:"bid,omitempty"`
	Ask   *float64 `json:"ask,omitempty"`
	Last  *float64 `json:"last,omitempty"`
	Close *float64 `json:"close,omitempty"`

	// Mark is derived from bid/ask/last/close; a Quote is only constructed
	// when a usable mark exists, so Mark is always positive.
	Mark float64 `json:"mark"`

	Delta *float64 `json:"delta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	IV    *float64 `json:"iv,omitempty"`

	DTE int `json:"dte"`
}

// Clone returns a deep copy. The cache hands out copies so callers can never
// observe mutations through a shared reference.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.Bid = clonePtr(q.Bid)
	out.Ask = clonePtr(q.Ask)
	out.Last = clonePtr(q.Last)
	out.Close = clonePtr(q.Close)
	out.Delta = clonePtr(q.Delta)
	out.Gamma = clonePtr(q.Gamma)
	out.Theta = clonePtr(q.Theta)
	out.IV = clonePtr(q.IV)
	return &out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
