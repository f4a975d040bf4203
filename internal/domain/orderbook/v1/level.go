package orderbookv1

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PriceLevel is a FIFO queue of resting orders sharing one exact price.
// Orders are kept sorted by timestamp then sequence, so the head of the
// queue is always the order with the best time priority.
type PriceLevel struct {
	Side   Side            `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Orders []*Order        `json:"orders"`
	Volume decimal.Decimal `json:"volume"`
}

// NewPriceLevel creates an empty level for the given side and price.
func NewPriceLevel(side Side, price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Side:   side,
		Price:  price,
		Orders: make([]*Order, 0),
		Volume: decimal.Zero,
	}
}

// AddOrder appends an order to the level and updates the cached volume.
// The order must carry the level's exact price and side.
func (l *PriceLevel) AddOrder(order *Order) error {
	if order == nil {
		return ErrNilOrder
	}
	if !order.Quantity.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, order.Quantity)
	}
	if !order.Price.Equal(l.Price) {
		return fmt.Errorf("%w: level %s, order %s", ErrPriceMismatch, l.Price, order.Price)
	}
	if order.Side != l.Side {
		return fmt.Errorf("%w: level %s, order %s", ErrSideMismatch, l.Side, order.Side)
	}

	order.Level = l
	l.Orders = append(l.Orders, order)
	l.Volume = l.Volume.Add(order.Quantity)
	l.sortOrders()

	return nil
}

// RemoveOrder removes the named order and decrements the cached volume by its
// remaining quantity.
func (l *PriceLevel) RemoveOrder(orderID string) (*Order, error) {
	for i, order := range l.Orders {
		if order.ID == orderID {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.Volume = l.Volume.Sub(order.Quantity)
			order.Level = nil
			return order, nil
		}
	}

	return nil, fmt.Errorf("%w: %s not in level %s", ErrOrderNotFound, orderID, l.Price)
}

// Fill drains the level against an incoming taker in time-priority order.
// It returns the trades produced and the maker orders that were fully filled.
// Filled makers are collected during the walk and removed after it, so the
// iteration never mutates the slice it is walking.
func (l *PriceLevel) Fill(taker *Order) ([]*Trade, []*Order, error) {
	var trades []*Trade
	var filled []*Order

	for _, maker := range l.Orders {
		if !taker.Quantity.IsPositive() {
			break
		}

		fillQty := decimal.Min(maker.Quantity, taker.Quantity)

		if err := maker.Reduce(fillQty); err != nil {
			return trades, filled, err
		}
		if err := taker.Reduce(fillQty); err != nil {
			return trades, filled, err
		}

		trade := NewTrade(maker, taker, fillQty)
		maker.TradeIDs = append(maker.TradeIDs, trade.ID)
		taker.TradeIDs = append(taker.TradeIDs, trade.ID)

		l.Volume = l.Volume.Sub(fillQty)
		trades = append(trades, trade)

		if maker.IsFilled() {
			filled = append(filled, maker)
		}
	}

	for _, maker := range filled {
		// remaining quantity is zero, so the cached volume is untouched
		if _, err := l.RemoveOrder(maker.ID); err != nil {
			return trades, filled, err
		}
	}

	return trades, filled, nil
}

// Front returns the order with the best time priority, or nil when empty.
func (l *PriceLevel) Front() *Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[0]
}

// IsEmpty checks if the level has no orders. Empty levels must be purged from
// the book by the caller.
func (l *PriceLevel) IsEmpty() bool {
	return len(l.Orders) == 0
}

// OrderCount returns the number of resting orders at this level.
func (l *PriceLevel) OrderCount() int {
	return len(l.Orders)
}

// sortOrders keeps the queue in time priority, timestamp first with sequence
// breaking ties between same-nanosecond arrivals.
func (l *PriceLevel) sortOrders() {
	sort.Stable(Orders(l.Orders))
}

// Validate performs basic consistency checks of the level's state.
func (l *PriceLevel) Validate() error {
	if !l.Price.IsPositive() {
		return fmt.Errorf("level price %s must be positive", l.Price)
	}

	calculated := decimal.Zero
	for _, order := range l.Orders {
		if order == nil {
			return ErrNilOrder
		}
		if order.Quantity.IsNegative() {
			return fmt.Errorf("%w: order %s has quantity %s", ErrNegativeQuantity, order.ID, order.Quantity)
		}
		calculated = calculated.Add(order.Quantity)
	}

	if !calculated.Equal(l.Volume) {
		return fmt.Errorf("volume mismatch: calculated %s, cached %s", calculated, l.Volume)
	}

	return nil
}
