package orderbookv1

import "errors"

var (
	// ErrSymbolMismatch is returned when a quote names a symbol this book does not trade.
	ErrSymbolMismatch = errors.New("symbol not correct for this order book")
	// ErrOrderNotFound is returned when an order id is not open in the book or a level.
	ErrOrderNotFound = errors.New("no order with that order ID currently exists")
	// ErrAlreadyPartiallyFilled is returned on cancel/modify of an order with trade history.
	ErrAlreadyPartiallyFilled = errors.New("order has already been partially filled")
	// ErrInsufficientLiquidity is returned when a market order exceeds the opposing resting volume.
	ErrInsufficientLiquidity = errors.New("can not process market order without market")
	// ErrPriceMismatch indicates a level was asked to hold an order at a different price.
	// Unreachable through the public API, it flags a caller bug.
	ErrPriceMismatch = errors.New("incorrect price level for order price")
	// ErrSideMismatch indicates a level was asked to hold an order from the other side.
	ErrSideMismatch = errors.New("incorrect price level for order side")
	// ErrNilOrder is returned when a nil order reaches a level.
	ErrNilOrder = errors.New("order cannot be nil")
	// ErrInvalidQuantity is returned when an order with non-positive remaining size reaches a level.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrNegativeQuantity indicates a fill would push an order's remaining quantity below zero.
	ErrNegativeQuantity = errors.New("quantity cannot go below zero")
)
