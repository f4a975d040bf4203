package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	ordercachev1 "github.com/robertjkeck2/KEX/internal/domain/order-cache/v1"
	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	quotereaderv1 "github.com/robertjkeck2/KEX/internal/domain/quote-reader/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
	tradepublisherv1 "github.com/robertjkeck2/KEX/internal/domain/trade-publisher/v1"
	"github.com/robertjkeck2/KEX/pkg/config"
	"github.com/robertjkeck2/KEX/pkg/logger"
)

// Engine hosts one orderbook: it drains the quote stream, applies each
// request to the book, publishes the resulting trades and keeps the
// snapshot and open-order cache in sync.
type Engine struct {
	// Core components
	orderbook      orderbookv1.Orderbook
	quoteReader    quotereaderv1.QuoteReader
	snapshotStore  snapshotv1.Store
	tradePublisher tradepublisherv1.TradePublisher
	orderCache     ordercachev1.Cache
	logger         *logger.Logger
	config         *config.Config

	mu                 sync.RWMutex
	quoteOffset        int64
	lastSnapshotOffset int64

	// Shutdown coordination
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	snapshotInterval    time.Duration
	snapshotOffsetDelta int64

	// Trade statistics
	totalTrades int64
	tradesMutex sync.RWMutex
}

// NewEngine creates a new instance of Engine with the provided dependencies.
func NewEngine(
	orderbook orderbookv1.Orderbook,
	quoteReader quotereaderv1.QuoteReader,
	snapshotStore snapshotv1.Store,
	tradePublisher tradepublisherv1.TradePublisher,
	orderCache ordercachev1.Cache,
	logger *logger.Logger,
	config *config.Config,
) (*Engine, error) {
	return NewEngineWithOptions(orderbook, quoteReader, snapshotStore, tradePublisher, orderCache, logger, config, DefaultEngineOptions())
}

// NewEngineWithOptions creates a new engine with custom options.
func NewEngineWithOptions(
	orderbook orderbookv1.Orderbook,
	quoteReader quotereaderv1.QuoteReader,
	snapshotStore snapshotv1.Store,
	tradePublisher tradepublisherv1.TradePublisher,
	orderCache ordercachev1.Cache,
	logger *logger.Logger,
	config *config.Config,
	options *Options,
) (*Engine, error) {
	e := &Engine{
		orderbook:      orderbook,
		quoteReader:    quoteReader,
		snapshotStore:  snapshotStore,
		tradePublisher: tradePublisher,
		orderCache:     orderCache,
		logger:         logger,
		config:         config,

		snapshotInterval:    options.SnapshotInterval,
		snapshotOffsetDelta: options.SnapshotOffsetDelta,
		quoteOffset:         -1,
	}

	// Restore book state before any quote is read
	if err := e.loadSnapshot(context.Background()); err != nil {
		return nil, err
	}

	return e, nil
}

// Start initializes the engine and starts processing routines.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.runQuoteProcessor()
	go e.runSnapshotManager()

	e.logger.Info("Engine started", logger.Field{
		Key:   "symbol",
		Value: e.config.Symbol,
	})

	return nil
}

// Stop gracefully shuts down the engine.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("Engine stopped gracefully")
		return nil
	case <-ctx.Done():
		e.logger.Warn("Engine stop timeout exceeded")
		return ctx.Err()
	}
}

// runQuoteProcessor combines quote reading and processing in a single goroutine.
// Single-threaded processing keeps the book's matching order identical to the
// stream order.
func (e *Engine) runQuoteProcessor() {
	defer e.wg.Done()

	e.logger.Info("Starting quote processor", logger.Field{
		Key:   "symbol",
		Value: e.config.Symbol,
	})

	// Resume right after the last quote the snapshot has seen
	currentOffset := e.getQuoteOffset()
	if currentOffset > 0 {
		currentOffset++
	}

	if err := e.quoteReader.SetOffset(currentOffset); err != nil {
		e.logger.ErrorContext(e.ctx, err, logger.Field{
			Key:   "action",
			Value: "set_quote_offset",
		})
		return
	}

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("Quote processor shutting down")
			e.quoteReader.Close()
			return
		default:
			msg, quoteRequest, err := e.quoteReader.ReadMessage(e.ctx)
			if err != nil {
				e.logger.ErrorContext(e.ctx, err, logger.Field{
					Key:   "action",
					Value: "read_quote_message",
				})
				// Simple backoff
				time.Sleep(100 * time.Millisecond)
				continue
			}

			if err := e.quoteReader.CommitMessages(e.ctx, msg); err != nil {
				e.logger.ErrorContext(e.ctx, err, logger.Field{
					Key:   "action",
					Value: "commit_quote_message",
				})
			}

			if err := e.processQuote(quoteRequest); err != nil {
				// A rejected quote leaves the book untouched; log and move on
				e.logger.ErrorContext(e.ctx, err, logger.Field{
					Key:   "action",
					Value: "process_quote",
				}, logger.Field{
					Key:   "quoteAction",
					Value: quoteRequest.Action,
				}, logger.Field{
					Key:   "quoteOffset",
					Value: quoteRequest.Offset,
				})
			}

			e.setQuoteOffset(msg.Offset)
		}
	}
}

// runSnapshotManager handles periodic snapshots.
func (e *Engine) runSnapshotManager() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.snapshotInterval)
	defer ticker.Stop()

	e.logger.Info("Starting snapshot manager")

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("Snapshot manager shutting down")
			return
		case <-ticker.C:
			if e.shouldCreateSnapshot() {
				e.createAndStoreSnapshot()
			}
		}
	}
}

// processQuote applies a single quote request to the book and propagates
// the resulting delta downstream.
func (e *Engine) processQuote(quoteRequest *quotereaderv1.QuoteRequestPayload) error {
	e.logger.Debug("Processing quote",
		logger.Field{Key: "quoteOffset", Value: quoteRequest.Offset},
		logger.Field{Key: "action", Value: quoteRequest.Action},
		logger.Field{Key: "accountID", Value: quoteRequest.AccountID},
	)

	var (
		result *orderbookv1.Result
		err    error
	)

	switch quoteRequest.Action {
	case quotereaderv1.ActionPlace:
		result, err = e.orderbook.ProcessOrder(quoteRequest.Quote())
	case quotereaderv1.ActionCancel:
		result, err = e.orderbook.CancelOrder(quoteRequest.OrderID)
	case quotereaderv1.ActionModify:
		result, err = e.orderbook.ModifyOrder(quoteRequest.OrderID, quoteRequest.Quote())
	default:
		return fmt.Errorf("unknown quote action: %s", quoteRequest.Action)
	}

	if err != nil {
		return err
	}

	if result.HasTrades() {
		e.publishTrades(result)
	}

	if err := e.orderCache.Apply(e.ctx, result); err != nil {
		e.logger.ErrorContext(e.ctx, err, logger.Field{
			Key:   "action",
			Value: "apply_order_cache",
		})
	}

	return nil
}

// publishTrades publishes each trade of a book call and updates statistics.
func (e *Engine) publishTrades(result *orderbookv1.Result) {
	e.tradesMutex.Lock()
	e.totalTrades += int64(len(result.Trades))
	currentTotal := e.totalTrades
	e.tradesMutex.Unlock()

	e.logger.Info("Trades executed",
		logger.Field{Key: "tradeCount", Value: len(result.Trades)},
		logger.Field{Key: "totalTrades", Value: currentTotal},
	)

	for _, trade := range result.Trades {
		event := tradepublisherv1.CreateFromTrade(trade, result.Order)

		if err := e.tradePublisher.PublishTradeEvent(e.ctx, event); err != nil {
			e.logger.ErrorContext(e.ctx, err, logger.Field{
				Key:   "action",
				Value: "publish_trade_event",
			}, logger.Field{
				Key:   "tradeID",
				Value: trade.ID,
			})
			continue
		}

		e.logger.Info("Trade executed",
			logger.Field{Key: "tradeID", Value: trade.ID},
			logger.Field{Key: "price", Value: trade.Price},
			logger.Field{Key: "quantity", Value: trade.Quantity},
			logger.Field{Key: "buyOrderID", Value: event.BuyOrderID},
			logger.Field{Key: "sellOrderID", Value: event.SellOrderID},
			logger.Field{Key: "takerSide", Value: event.TakerSide},
		)
	}
}

// shouldCreateSnapshot checks if a snapshot should be created.
func (e *Engine) shouldCreateSnapshot() bool {
	e.mu.RLock()
	currentOffset := e.quoteOffset
	lastSnapshotOffset := e.lastSnapshotOffset
	e.mu.RUnlock()

	if currentOffset <= 0 {
		return false
	}

	delta := currentOffset - lastSnapshotOffset
	return delta >= e.snapshotOffsetDelta
}

// createAndStoreSnapshot creates and stores a snapshot.
func (e *Engine) createAndStoreSnapshot() {
	currentOffset := e.getQuoteOffset()

	snapshot := e.orderbook.CreateSnapshot()
	snapshot.OrderOffset = currentOffset

	if err := e.snapshotStore.Store(e.ctx, snapshot); err != nil {
		e.logger.ErrorContext(e.ctx, err, logger.Field{
			Key:   "action",
			Value: "store_snapshot",
		})
		return
	}

	e.setLastSnapshotOffset(currentOffset)
	e.logger.Info("Snapshot stored successfully", logger.Field{
		Key:   "symbol",
		Value: e.config.Symbol,
	}, logger.Field{
		Key:   "offset",
		Value: currentOffset,
	})
}

// Thread-safe getters and setters
func (e *Engine) getQuoteOffset() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.quoteOffset
}

func (e *Engine) setQuoteOffset(offset int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quoteOffset = offset
}

func (e *Engine) getLastSnapshotOffset() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnapshotOffset
}

func (e *Engine) setLastSnapshotOffset(offset int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSnapshotOffset = offset
}

// loadSnapshot restores the orderbook and the open-order cache from the
// latest stored snapshot.
func (e *Engine) loadSnapshot(ctx context.Context) error {
	snapshot, err := e.snapshotStore.LoadStore(ctx)
	if err != nil {
		return err
	}

	if snapshot == nil {
		return nil
	}

	if err := e.orderbook.RestoreOrderbook(snapshot); err != nil {
		return err
	}

	if err := e.orderCache.Rebuild(ctx, snapshot); err != nil {
		e.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "action",
			Value: "rebuild_order_cache",
		})
	}

	e.mu.Lock()
	e.quoteOffset = snapshot.OrderOffset
	e.lastSnapshotOffset = snapshot.OrderOffset
	e.mu.Unlock()

	e.logger.Info("Orderbook restored from snapshot", logger.Field{
		Key:   "quoteOffset",
		Value: snapshot.OrderOffset,
	}, logger.Field{
		Key:   "openOrders",
		Value: len(snapshot.Orders),
	})

	return nil
}

// GetQuoteOffset returns the current quote offset.
func (e *Engine) GetQuoteOffset() int64 {
	return e.getQuoteOffset()
}

// GetLastSnapshotOffset returns the last snapshot offset.
func (e *Engine) GetLastSnapshotOffset() int64 {
	return e.getLastSnapshotOffset()
}

// GetTotalTrades returns the total number of trades published.
func (e *Engine) GetTotalTrades() int64 {
	e.tradesMutex.RLock()
	defer e.tradesMutex.RUnlock()
	return e.totalTrades
}
