package orderbookv1

// Result carries the per-call delta of one mutating book operation: the order
// the call created, the trades it produced, every order that left the book
// (fully filled or cancelled) during the call, and the makers that traded but
// still rest with a reduced quantity. The delta is transient; the host
// decides how and where to persist it.
type Result struct {
	Order           *Order   `json:"order"`
	Trades          []*Trade `json:"trades"`
	Completed       []*Order `json:"completed"`
	PartiallyFilled []*Order `json:"partiallyFilled"`
}

// HasTrades checks whether the call produced any trades.
func (r *Result) HasTrades() bool {
	return len(r.Trades) > 0
}
