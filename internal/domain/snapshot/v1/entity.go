package snapshotv1

import "github.com/shopspring/decimal"

// Snapshot represents the full state of the order book at a specific point in
// time, sufficient to rebuild it byte for byte.
type Snapshot struct {
	OrderOffset int64       `json:"orderOffset"`
	Symbol      string      `json:"symbol"`
	Sequence    int64       `json:"sequence"` // Book sequence counter at capture time
	Orders      []BookOrder `json:"orders"`
}

// BookOrder represents one resting order with everything a restore needs,
// including the trade history that gates cancellation.
type BookOrder struct {
	OrderID         string          `json:"orderID"`
	AccountID       string          `json:"accountID"`
	Side            string          `json:"side"`
	Type            string          `json:"orderType"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity decimal.Decimal `json:"initialQuantity"`
	Quantity        decimal.Decimal `json:"quantity"`
	Timestamp       int64           `json:"timestamp"`
	Sequence        int64           `json:"sequence"`
	TradeIDs        []string        `json:"tradeIDs"`
}
