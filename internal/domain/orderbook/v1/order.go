package orderbookv1

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/robertjkeck2/KEX/pkg/errors"
)

// Side represents which side of the book an order belongs to.
type Side string

const (
	// SideBuy represents a buy (bid) order.
	SideBuy Side = "BUY"
	// SideSell represents a sell (ask) order.
	SideSell Side = "SELL"
)

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the type of order.
type OrderType string

const (
	// OrderTypeMarket represents a market order.
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeLimit represents a limit order.
	OrderTypeLimit OrderType = "LIMIT"
)

// Quote is a request to place an order in the order book.
type Quote struct {
	AccountID string          `json:"account_id"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"order_type"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Validate checks the quote shape and reports every violation at once.
func (q Quote) Validate() error {
	base := pkgerrors.NewBaseError()

	if q.Side != SideBuy && q.Side != SideSell {
		base.AddErrorDetails(pkgerrors.NewErrorDetails(
			"Incorrect BUY/SELL side format.", string(pkgerrors.SideError), "side"))
	}
	if q.Type != OrderTypeMarket && q.Type != OrderTypeLimit {
		base.AddErrorDetails(pkgerrors.NewErrorDetails(
			"Incorrect LIMIT/MARKET order type format.", string(pkgerrors.TypeError), "order_type"))
	}
	if q.Type == OrderTypeLimit && !q.Price.IsPositive() {
		base.AddErrorDetails(pkgerrors.NewErrorDetails(
			"Price must be greater than 0.", string(pkgerrors.PriceError), "price"))
	}
	// Level keys are two-decimal strings, so a sub-cent price would collide
	// with a neighbouring level instead of resting at its own.
	if q.Type == OrderTypeLimit && q.Price.IsPositive() && !q.Price.Equal(q.Price.Round(2)) {
		base.AddErrorDetails(pkgerrors.NewErrorDetails(
			"Price must have at most two decimal places.", string(pkgerrors.PriceError), "price"))
	}
	if !q.Quantity.IsPositive() {
		base.AddErrorDetails(pkgerrors.NewErrorDetails(
			"Quantity must be greater than 0.", string(pkgerrors.QuantityError), "quantity"))
	}

	if base.HasDetails() {
		return base
	}
	return nil
}

// Order represents a single order in the order book. Price stays zero on a
// market order until it trades, at which point it adopts the execution price.
type Order struct {
	ID              string          `json:"order_id"`
	AccountID       string          `json:"account_id"`
	Side            Side            `json:"side"`
	Type            OrderType       `json:"order_type"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	Quantity        decimal.Decimal `json:"quantity"`
	Timestamp       int64           `json:"timestamp"`
	Sequence        int64           `json:"sequence"` // Tie-breaker for identical timestamps
	TradeIDs        []string        `json:"trade_ids"`
	Level           *PriceLevel     `json:"-"`
}

// NewOrder creates a new order from a quote. The sequence is assigned by the
// book and determines time priority among same-timestamp arrivals.
func NewOrder(quote Quote, sequence int64) *Order {
	order := &Order{
		ID:              ulid.Make().String(),
		AccountID:       quote.AccountID,
		Side:            quote.Side,
		Type:            quote.Type,
		Symbol:          quote.Symbol,
		InitialQuantity: quote.Quantity,
		Quantity:        quote.Quantity,
		Timestamp:       time.Now().UnixNano(),
		Sequence:        sequence,
	}
	if quote.Type == OrderTypeLimit {
		order.Price = quote.Price
	}
	return order
}

// IsBuy checks if the order is a buy (bid) order.
func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

// IsSell checks if the order is a sell (ask) order.
func (o *Order) IsSell() bool {
	return o.Side == SideSell
}

// IsFilled checks if the order is filled (remaining quantity is zero).
func (o *Order) IsFilled() bool {
	return o.Quantity.IsZero()
}

// HasTrades checks if the order has participated in any trade.
func (o *Order) HasTrades() bool {
	return len(o.TradeIDs) > 0
}

// Reduce decrements the remaining quantity by the given amount. The remaining
// quantity is monotonically non-increasing and never goes below zero.
func (o *Order) Reduce(by decimal.Decimal) error {
	if by.IsNegative() {
		return fmt.Errorf("%w: reduce by %s", ErrNegativeQuantity, by)
	}

	next := o.Quantity.Sub(by)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s remaining, reduce by %s", ErrNegativeQuantity, o.Quantity, by)
	}

	o.Quantity = next
	return nil
}
