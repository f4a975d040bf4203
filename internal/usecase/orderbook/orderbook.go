package orderbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
)

// Orderbook maintains the live book for a single symbol: one price-level map
// per side plus an index of open orders by id. A single mutex serializes
// every call; the matching walk itself holds no other locks.
type Orderbook struct {
	mu        sync.RWMutex
	Symbol    string
	BidLevels map[string]*orderbookv1.PriceLevel // price key -> level
	AskLevels map[string]*orderbookv1.PriceLevel // price key -> level
	Orders    map[string]*orderbookv1.Order      // orderID -> open order
	sequence  int64
}

// NewOrderbook creates an empty orderbook for the given symbol.
func NewOrderbook(symbol string) *Orderbook {
	return &Orderbook{
		Symbol:    symbol,
		BidLevels: make(map[string]*orderbookv1.PriceLevel),
		AskLevels: make(map[string]*orderbookv1.PriceLevel),
		Orders:    make(map[string]*orderbookv1.Order),
	}
}

// priceKey canonicalizes a decimal price into a level map key. Prices are
// quoted to two decimal places, so 100.5 and 100.50 share a level.
func priceKey(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// ProcessOrder validates the quote, creates an order and routes it against
// the opposite side. The returned Result carries the order, the trades the
// call produced and every order that left the book during the call.
func (ob *Orderbook) ProcessOrder(quote orderbookv1.Quote) (*orderbookv1.Result, error) {
	if err := quote.Validate(); err != nil {
		return nil, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if quote.Symbol != ob.Symbol {
		return nil, fmt.Errorf("%w: got %s, book trades %s", orderbookv1.ErrSymbolMismatch, quote.Symbol, ob.Symbol)
	}

	return ob.processLocked(quote)
}

func (ob *Orderbook) processLocked(quote orderbookv1.Quote) (*orderbookv1.Result, error) {
	// A market order must be fully satisfiable by the opposing resting volume
	// before anything mutates: admission is all or nothing.
	if quote.Type == orderbookv1.OrderTypeMarket {
		opposing := sideVolume(ob.levels(quote.Side.Opposite()))
		if opposing.LessThan(quote.Quantity) {
			return nil, fmt.Errorf("%w: need %s, resting %s",
				orderbookv1.ErrInsufficientLiquidity, quote.Quantity, opposing)
		}
	}

	ob.sequence++
	order := orderbookv1.NewOrder(quote, ob.sequence)

	result := &orderbookv1.Result{Order: order}
	ob.Orders[order.ID] = order

	if err := ob.route(order, result); err != nil {
		return nil, err
	}

	return result, nil
}

// route runs the matching walk: drain the best opposing level while the taker
// is marketable against it, then rest any limit remainder at its own price.
func (ob *Orderbook) route(taker *orderbookv1.Order, result *orderbookv1.Result) error {
	opposite := taker.Side.Opposite()

	for taker.Quantity.IsPositive() {
		level, ok := ob.bestLevel(opposite)
		if !ok {
			break
		}
		if taker.Type == orderbookv1.OrderTypeLimit && !crosses(taker.Side, taker.Price, level.Price) {
			break
		}
		if taker.Type == orderbookv1.OrderTypeMarket {
			// a market order adopts the best opposing price as its execution price
			taker.Price = level.Price
		}

		trades, filled, err := level.Fill(taker)
		if err != nil {
			return err
		}

		result.Trades = append(result.Trades, trades...)
		for _, maker := range filled {
			delete(ob.Orders, maker.ID)
			result.Completed = append(result.Completed, maker)
		}

		if level.IsEmpty() {
			delete(ob.levels(opposite), priceKey(level.Price))
		}
	}

	// makers that traded but still rest: at most the last maker touched
	for _, trade := range result.Trades {
		if maker, open := ob.Orders[trade.MakerOrderID]; open {
			result.PartiallyFilled = append(result.PartiallyFilled, maker)
		}
	}

	if taker.Quantity.IsPositive() {
		if taker.Type == orderbookv1.OrderTypeMarket {
			// unreachable: admission pre-validated the opposing volume
			delete(ob.Orders, taker.ID)
			return orderbookv1.ErrInsufficientLiquidity
		}
		return ob.rest(taker)
	}

	delete(ob.Orders, taker.ID)
	result.Completed = append(result.Completed, taker)
	return nil
}

// rest inserts a limit remainder into its own side's level at its own price,
// creating the level lazily.
func (ob *Orderbook) rest(order *orderbookv1.Order) error {
	levels := ob.levels(order.Side)
	key := priceKey(order.Price)

	level, exists := levels[key]
	if !exists {
		level = orderbookv1.NewPriceLevel(order.Side, order.Price)
		levels[key] = level
	}

	if err := level.AddOrder(order); err != nil {
		delete(ob.Orders, order.ID)
		if level.IsEmpty() {
			delete(levels, key)
		}
		return err
	}

	return nil
}

// CancelOrder removes a fully resting order from its level and the index.
// Orders with any trade history can no longer be cancelled.
func (ob *Orderbook) CancelOrder(orderID string) (*orderbookv1.Result, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return ob.cancelLocked(orderID)
}

func (ob *Orderbook) cancelLocked(orderID string) (*orderbookv1.Result, error) {
	order, exists := ob.Orders[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", orderbookv1.ErrOrderNotFound, orderID)
	}
	if order.HasTrades() {
		return nil, fmt.Errorf("%w: %s", orderbookv1.ErrAlreadyPartiallyFilled, orderID)
	}

	level := order.Level
	if level != nil {
		if _, err := level.RemoveOrder(orderID); err != nil {
			return nil, err
		}
		if level.IsEmpty() {
			delete(ob.levels(order.Side), priceKey(level.Price))
		}
	}

	delete(ob.Orders, orderID)

	return &orderbookv1.Result{
		Order:     order,
		Completed: []*orderbookv1.Order{order},
	}, nil
}

// ModifyOrder cancels the named order and submits the new quote in its place.
// The replacement is a new identity with fresh time priority. If the resubmit
// fails, the old order is put back so the call has no effect.
func (ob *Orderbook) ModifyOrder(orderID string, quote orderbookv1.Quote) (*orderbookv1.Result, error) {
	if err := quote.Validate(); err != nil {
		return nil, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if quote.Symbol != ob.Symbol {
		return nil, fmt.Errorf("%w: got %s, book trades %s", orderbookv1.ErrSymbolMismatch, quote.Symbol, ob.Symbol)
	}

	cancelled, err := ob.cancelLocked(orderID)
	if err != nil {
		return nil, err
	}

	result, err := ob.processLocked(quote)
	if err != nil {
		old := cancelled.Order
		ob.Orders[old.ID] = old
		if restErr := ob.rest(old); restErr != nil {
			return nil, restErr
		}
		return nil, err
	}

	result.Completed = append([]*orderbookv1.Order{cancelled.Order}, result.Completed...)
	return result, nil
}

// BestBid returns the highest resting bid price, or false if that side is empty.
func (ob *Orderbook) BestBid() (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	level, ok := ob.bestLevel(orderbookv1.SideBuy)
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// BestAsk returns the lowest resting ask price, or false if that side is empty.
func (ob *Orderbook) BestAsk() (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	level, ok := ob.bestLevel(orderbookv1.SideSell)
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// Bids returns bid levels sorted by price (best, i.e. highest, first).
func (ob *Orderbook) Bids() []*orderbookv1.PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.bidsLocked()
}

// Asks returns ask levels sorted by price (best, i.e. lowest, first).
func (ob *Orderbook) Asks() []*orderbookv1.PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.asksLocked()
}

// BidTotalVolume returns the aggregate resting bid volume.
func (ob *Orderbook) BidTotalVolume() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return sideVolume(ob.BidLevels)
}

// AskTotalVolume returns the aggregate resting ask volume.
func (ob *Orderbook) AskTotalVolume() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return sideVolume(ob.AskLevels)
}

// CreateSnapshot captures the full book state: every resting order with its
// trade history plus the sequence counter, in deterministic order.
func (ob *Orderbook) CreateSnapshot() *snapshotv1.Snapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var bookOrders []snapshotv1.BookOrder

	appendLevel := func(level *orderbookv1.PriceLevel) {
		for _, order := range level.Orders {
			bookOrders = append(bookOrders, snapshotv1.BookOrder{
				OrderID:         order.ID,
				AccountID:       order.AccountID,
				Side:            string(order.Side),
				Type:            string(order.Type),
				Price:           order.Price,
				InitialQuantity: order.InitialQuantity,
				Quantity:        order.Quantity,
				Timestamp:       order.Timestamp,
				Sequence:        order.Sequence,
				TradeIDs:        append([]string(nil), order.TradeIDs...),
			})
		}
	}

	for _, level := range ob.bidsLocked() {
		appendLevel(level)
	}
	for _, level := range ob.asksLocked() {
		appendLevel(level)
	}

	return &snapshotv1.Snapshot{
		OrderOffset: 0, // set by the engine
		Symbol:      ob.Symbol,
		Sequence:    ob.sequence,
		Orders:      bookOrders,
	}
}

// RestoreOrderbook replaces the book state with the snapshot's.
func (ob *Orderbook) RestoreOrderbook(snapshot *snapshotv1.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if snapshot.Symbol != "" && snapshot.Symbol != ob.Symbol {
		return fmt.Errorf("%w: snapshot for %s, book trades %s",
			orderbookv1.ErrSymbolMismatch, snapshot.Symbol, ob.Symbol)
	}

	ob.BidLevels = make(map[string]*orderbookv1.PriceLevel)
	ob.AskLevels = make(map[string]*orderbookv1.PriceLevel)
	ob.Orders = make(map[string]*orderbookv1.Order)
	ob.sequence = snapshot.Sequence

	for _, bookOrder := range snapshot.Orders {
		order := &orderbookv1.Order{
			ID:              bookOrder.OrderID,
			AccountID:       bookOrder.AccountID,
			Side:            orderbookv1.Side(bookOrder.Side),
			Type:            orderbookv1.OrderType(bookOrder.Type),
			Symbol:          ob.Symbol,
			Price:           bookOrder.Price,
			InitialQuantity: bookOrder.InitialQuantity,
			Quantity:        bookOrder.Quantity,
			Timestamp:       bookOrder.Timestamp,
			Sequence:        bookOrder.Sequence,
			TradeIDs:        bookOrder.TradeIDs,
		}

		ob.Orders[order.ID] = order
		if err := ob.rest(order); err != nil {
			return fmt.Errorf("failed to restore order %s: %w", bookOrder.OrderID, err)
		}
	}

	return nil
}

// levels returns the side map an order of the given side rests in.
func (ob *Orderbook) levels(side orderbookv1.Side) map[string]*orderbookv1.PriceLevel {
	if side == orderbookv1.SideBuy {
		return ob.BidLevels
	}
	return ob.AskLevels
}

// bestLevel returns the level with the best price on the given side: the
// maximum for bids, the minimum for asks.
func (ob *Orderbook) bestLevel(side orderbookv1.Side) (*orderbookv1.PriceLevel, bool) {
	var best *orderbookv1.PriceLevel

	for _, level := range ob.levels(side) {
		if best == nil {
			best = level
			continue
		}
		if side == orderbookv1.SideBuy && level.Price.GreaterThan(best.Price) {
			best = level
		}
		if side == orderbookv1.SideSell && level.Price.LessThan(best.Price) {
			best = level
		}
	}

	return best, best != nil
}

func (ob *Orderbook) bidsLocked() []*orderbookv1.PriceLevel {
	levels := make(orderbookv1.PriceLevels, 0, len(ob.BidLevels))
	for _, level := range ob.BidLevels {
		levels = append(levels, level)
	}
	sort.Sort(orderbookv1.ByBestBid{PriceLevels: levels})
	return levels
}

func (ob *Orderbook) asksLocked() []*orderbookv1.PriceLevel {
	levels := make(orderbookv1.PriceLevels, 0, len(ob.AskLevels))
	for _, level := range ob.AskLevels {
		levels = append(levels, level)
	}
	sort.Sort(orderbookv1.ByBestAsk{PriceLevels: levels})
	return levels
}

// crosses reports whether a limit taker at takerPrice is marketable against
// a resting level at restingPrice.
func crosses(side orderbookv1.Side, takerPrice, restingPrice decimal.Decimal) bool {
	if side == orderbookv1.SideBuy {
		return takerPrice.GreaterThanOrEqual(restingPrice)
	}
	return takerPrice.LessThanOrEqual(restingPrice)
}

func sideVolume(levels map[string]*orderbookv1.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.Volume)
	}
	return total
}
