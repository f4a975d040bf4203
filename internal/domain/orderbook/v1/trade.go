package orderbookv1

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one match event.
type Trade struct {
	ID           string          `json:"trade_id"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Timestamp    int64           `json:"timestamp"`
}

// NewTrade records a match between a resting maker and an incoming taker.
// Price-time priority means the trade executes at the maker's price.
func NewTrade(maker, taker *Order, quantity decimal.Decimal) *Trade {
	return &Trade{
		ID:           ulid.Make().String(),
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		Symbol:       maker.Symbol,
		Price:        maker.Price,
		Quantity:     quantity,
		Timestamp:    time.Now().UnixNano(),
	}
}
