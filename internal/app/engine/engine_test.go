package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordercachev1 "github.com/robertjkeck2/KEX/internal/domain/order-cache/v1"
	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	quotereaderv1 "github.com/robertjkeck2/KEX/internal/domain/quote-reader/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
	tradepublisherv1 "github.com/robertjkeck2/KEX/internal/domain/trade-publisher/v1"
	"github.com/robertjkeck2/KEX/internal/usecase/orderbook"
	"github.com/robertjkeck2/KEX/pkg/config"
	"github.com/robertjkeck2/KEX/pkg/logger"
)

// fakeQuoteReader serves queued payloads and then blocks until the context
// is cancelled, mimicking an idle Kafka partition.
type fakeQuoteReader struct {
	mu       sync.Mutex
	messages []*quotereaderv1.QuoteRequestPayload
	offset   int64
	closed   bool
}

func (r *fakeQuoteReader) ReadMessage(ctx context.Context) (kafka.Message, *quotereaderv1.QuoteRequestPayload, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		payload := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return kafka.Message{Offset: payload.Offset}, payload, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, nil, ctx.Err()
}

func (r *fakeQuoteReader) SetOffset(offset int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = offset
	return nil
}

func (r *fakeQuoteReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeQuoteReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return nil
}

type fakeTradePublisher struct {
	mu     sync.Mutex
	events []*tradepublisherv1.TradeEventPayload
	err    error
}

func (p *fakeTradePublisher) PublishTradeEvent(ctx context.Context, event *tradepublisherv1.TradeEventPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakeTradePublisher) Events() []*tradepublisherv1.TradeEventPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*tradepublisherv1.TradeEventPayload(nil), p.events...)
}

type fakeSnapshotStore struct {
	mu      sync.Mutex
	loaded  *snapshotv1.Snapshot
	loadErr error
	stored  []*snapshotv1.Snapshot
	saveErr error
}

func (s *fakeSnapshotStore) Store(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored = append(s.stored, snapshot)
	return nil
}

func (s *fakeSnapshotStore) LoadStore(ctx context.Context) (*snapshotv1.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded, s.loadErr
}

// fakeOrderCache tracks which order ids the engine currently considers open.
type fakeOrderCache struct {
	mu       sync.Mutex
	open     map[string]struct{}
	rebuilds int
}

func newFakeOrderCache() *fakeOrderCache {
	return &fakeOrderCache{open: make(map[string]struct{})}
}

func (c *fakeOrderCache) Apply(ctx context.Context, result *orderbookv1.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	completed := make(map[string]struct{}, len(result.Completed))
	for _, order := range result.Completed {
		completed[order.ID] = struct{}{}
		delete(c.open, order.ID)
	}
	if result.Order != nil {
		if _, done := completed[result.Order.ID]; !done {
			c.open[result.Order.ID] = struct{}{}
		}
	}
	return nil
}

func (c *fakeOrderCache) Rebuild(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuilds++
	for _, order := range snapshot.Orders {
		c.open[order.OrderID] = struct{}{}
	}
	return nil
}

func (c *fakeOrderCache) GetOpen(ctx context.Context, orderID string) (*ordercachev1.OpenOrderPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.open[orderID]; !ok {
		return nil, nil
	}
	return &ordercachev1.OpenOrderPayload{OrderID: orderID}, nil
}

func (c *fakeOrderCache) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// Test fixtures and helpers
type testFixture struct {
	reader    *fakeQuoteReader
	publisher *fakeTradePublisher
	store     *fakeSnapshotStore
	cache     *fakeOrderCache
	orderbook *orderbook.Orderbook
	logger    *logger.Logger
	config    *config.Config
}

func setupTestFixture(t *testing.T) *testFixture {
	log, err := logger.NewLogger()
	require.NoError(t, err)

	return &testFixture{
		reader:    &fakeQuoteReader{},
		publisher: &fakeTradePublisher{},
		store:     &fakeSnapshotStore{},
		cache:     newFakeOrderCache(),
		orderbook: orderbook.NewOrderbook("KEQ"),
		logger:    log,
		config: &config.Config{
			Symbol: "KEQ",
			QuoteReader: config.KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "quotes",
			},
			TradePublisher: config.KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "trades",
			},
		},
	}
}

// Helper function to create engine with initialized context
func createTestEngine(t *testing.T, fixture *testFixture) *Engine {
	engine, err := NewEngine(
		fixture.orderbook,
		fixture.reader,
		fixture.store,
		fixture.publisher,
		fixture.cache,
		fixture.logger,
		fixture.config,
	)
	require.NoError(t, err)

	engine.ctx, engine.cancel = context.WithCancel(context.Background())

	return engine
}

func placePayload(accountID string, side orderbookv1.Side, orderType orderbookv1.OrderType, price, quantity string, offset int64) *quotereaderv1.QuoteRequestPayload {
	return &quotereaderv1.QuoteRequestPayload{
		Action:    quotereaderv1.ActionPlace,
		AccountID: accountID,
		Side:      side,
		Type:      orderType,
		Symbol:    "KEQ",
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString(quantity),
		Offset:    offset,
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("No stored snapshot starts an empty book", func(t *testing.T) {
		fixture := setupTestFixture(t)

		engine := createTestEngine(t, fixture)

		assert.Equal(t, int64(-1), engine.GetQuoteOffset())
		assert.Equal(t, 0, fixture.cache.rebuilds)
		assert.Empty(t, fixture.orderbook.Bids())
	})

	t.Run("Stored snapshot restores book, cache and offset", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.store.loaded = &snapshotv1.Snapshot{
			OrderOffset: 100,
			Symbol:      "KEQ",
			Sequence:    4,
			Orders: []snapshotv1.BookOrder{
				{
					OrderID:         "01ARZ3NDEKTSV4RRFFQ69G5FAV",
					AccountID:       "acct1",
					Side:            string(orderbookv1.SideBuy),
					Type:            string(orderbookv1.OrderTypeLimit),
					Price:           decimal.RequireFromString("100.00"),
					InitialQuantity: decimal.RequireFromString("10"),
					Quantity:        decimal.RequireFromString("10"),
					Timestamp:       1000,
					Sequence:        4,
				},
			},
		}

		engine := createTestEngine(t, fixture)

		assert.Equal(t, int64(100), engine.GetQuoteOffset())
		assert.Equal(t, int64(100), engine.GetLastSnapshotOffset())
		assert.Equal(t, 1, fixture.cache.rebuilds)
		assert.Equal(t, 1, fixture.cache.openCount())
		assert.True(t, fixture.orderbook.BidTotalVolume().Equal(decimal.RequireFromString("10")))
	})

	t.Run("Snapshot load failure aborts construction", func(t *testing.T) {
		fixture := setupTestFixture(t)
		fixture.store.loadErr = errors.New("redis down")

		_, err := NewEngine(
			fixture.orderbook,
			fixture.reader,
			fixture.store,
			fixture.publisher,
			fixture.cache,
			fixture.logger,
			fixture.config,
		)

		assert.Error(t, err)
	})
}

func TestEngine_ProcessQuote(t *testing.T) {
	t.Run("Resting limit order reaches the cache", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		err := engine.processQuote(placePayload("buyer", orderbookv1.SideBuy, orderbookv1.OrderTypeLimit, "100.00", "10", 1))

		require.NoError(t, err)
		assert.Equal(t, 1, fixture.cache.openCount())
		assert.Empty(t, fixture.publisher.Events())
		assert.Equal(t, int64(0), engine.GetTotalTrades())
	})

	t.Run("Crossing orders publish a trade", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		require.NoError(t, engine.processQuote(placePayload("seller", orderbookv1.SideSell, orderbookv1.OrderTypeLimit, "100.00", "10", 1)))
		require.NoError(t, engine.processQuote(placePayload("buyer", orderbookv1.SideBuy, orderbookv1.OrderTypeMarket, "0", "10", 2)))

		events := fixture.publisher.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "buy", events[0].TakerSide)
		assert.Equal(t, "KEQ", events[0].Symbol)
		assert.True(t, events[0].Price.Equal(decimal.RequireFromString("100.00")))
		assert.True(t, events[0].Quantity.Equal(decimal.RequireFromString("10")))

		assert.Equal(t, int64(1), engine.GetTotalTrades())
		assert.Equal(t, 0, fixture.cache.openCount())
	})

	t.Run("Cancel removes the order from the cache", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		placed, err := fixture.orderbook.ProcessOrder(orderbookv1.Quote{
			AccountID: "buyer",
			Side:      orderbookv1.SideBuy,
			Type:      orderbookv1.OrderTypeLimit,
			Symbol:    "KEQ",
			Price:     decimal.RequireFromString("100.00"),
			Quantity:  decimal.RequireFromString("10"),
		})
		require.NoError(t, err)
		require.NoError(t, fixture.cache.Apply(context.Background(), placed))

		err = engine.processQuote(&quotereaderv1.QuoteRequestPayload{
			Action:  quotereaderv1.ActionCancel,
			OrderID: placed.Order.ID,
			Offset:  2,
		})

		require.NoError(t, err)
		assert.Equal(t, 0, fixture.cache.openCount())
		assert.Empty(t, fixture.orderbook.Bids())
	})

	t.Run("Modify replaces the cached order", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		placed, err := fixture.orderbook.ProcessOrder(orderbookv1.Quote{
			AccountID: "buyer",
			Side:      orderbookv1.SideBuy,
			Type:      orderbookv1.OrderTypeLimit,
			Symbol:    "KEQ",
			Price:     decimal.RequireFromString("100.00"),
			Quantity:  decimal.RequireFromString("10"),
		})
		require.NoError(t, err)
		require.NoError(t, fixture.cache.Apply(context.Background(), placed))

		err = engine.processQuote(&quotereaderv1.QuoteRequestPayload{
			Action:    quotereaderv1.ActionModify,
			OrderID:   placed.Order.ID,
			AccountID: "buyer",
			Side:      orderbookv1.SideBuy,
			Type:      orderbookv1.OrderTypeLimit,
			Symbol:    "KEQ",
			Price:     decimal.RequireFromString("101.00"),
			Quantity:  decimal.RequireFromString("10"),
			Offset:    2,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, fixture.cache.openCount())

		best, ok := fixture.orderbook.BestBid()
		require.True(t, ok)
		assert.True(t, best.Equal(decimal.RequireFromString("101.00")))
	})

	t.Run("Rejected market order surfaces the error", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		err := engine.processQuote(placePayload("buyer", orderbookv1.SideBuy, orderbookv1.OrderTypeMarket, "0", "10", 1))

		assert.ErrorIs(t, err, orderbookv1.ErrInsufficientLiquidity)
		assert.Equal(t, 0, fixture.cache.openCount())
		assert.Empty(t, fixture.publisher.Events())
	})

	t.Run("Unknown action is rejected", func(t *testing.T) {
		fixture := setupTestFixture(t)
		engine := createTestEngine(t, fixture)

		err := engine.processQuote(&quotereaderv1.QuoteRequestPayload{Action: "liquidate"})

		assert.Error(t, err)
	})
}

func TestEngine_SnapshotManagement(t *testing.T) {
	testCases := []struct {
		name                   string
		currentOffset          int64
		lastSnapshotOffset     int64
		snapshotOffsetDelta    int64
		saveErr                error
		expectedShouldSnapshot bool
		expectStoreSuccess     bool
	}{
		{
			name:                   "offset delta exceeded",
			currentOffset:          1000,
			lastSnapshotOffset:     0,
			snapshotOffsetDelta:    500,
			expectedShouldSnapshot: true,
			expectStoreSuccess:     true,
		},
		{
			name:                   "offset delta not exceeded",
			currentOffset:          100,
			lastSnapshotOffset:     50,
			snapshotOffsetDelta:    500,
			expectedShouldSnapshot: false,
		},
		{
			name:                   "zero current offset",
			currentOffset:          0,
			lastSnapshotOffset:     0,
			snapshotOffsetDelta:    100,
			expectedShouldSnapshot: false,
		},
		{
			name:                   "store error keeps last snapshot offset",
			currentOffset:          1000,
			lastSnapshotOffset:     0,
			snapshotOffsetDelta:    500,
			saveErr:                errors.New("store error"),
			expectedShouldSnapshot: true,
			expectStoreSuccess:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := setupTestFixture(t)
			fixture.store.saveErr = tc.saveErr

			engine := createTestEngine(t, fixture)
			engine.snapshotOffsetDelta = tc.snapshotOffsetDelta
			engine.setQuoteOffset(tc.currentOffset)
			engine.setLastSnapshotOffset(tc.lastSnapshotOffset)

			assert.Equal(t, tc.expectedShouldSnapshot, engine.shouldCreateSnapshot())

			if !tc.expectedShouldSnapshot {
				return
			}

			engine.createAndStoreSnapshot()

			if tc.expectStoreSuccess {
				assert.Equal(t, tc.currentOffset, engine.GetLastSnapshotOffset())
				require.Len(t, fixture.store.stored, 1)
				assert.Equal(t, tc.currentOffset, fixture.store.stored[0].OrderOffset)
			} else {
				assert.Equal(t, tc.lastSnapshotOffset, engine.GetLastSnapshotOffset())
				assert.Empty(t, fixture.store.stored)
			}
		})
	}
}

func TestEngine_StartStop(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.reader.messages = []*quotereaderv1.QuoteRequestPayload{
		placePayload("seller", orderbookv1.SideSell, orderbookv1.OrderTypeLimit, "100.00", "10", 1),
		placePayload("buyer", orderbookv1.SideBuy, orderbookv1.OrderTypeLimit, "100.00", "10", 2),
	}

	engine, err := NewEngine(
		fixture.orderbook,
		fixture.reader,
		fixture.store,
		fixture.publisher,
		fixture.cache,
		fixture.logger,
		fixture.config,
	)
	require.NoError(t, err)

	require.NoError(t, engine.Start(context.Background()))

	require.Eventually(t, func() bool {
		return engine.GetQuoteOffset() == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, fixture.publisher.Events(), 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Stop(stopCtx))

	fixture.reader.mu.Lock()
	closed := fixture.reader.closed
	fixture.reader.mu.Unlock()
	assert.True(t, closed)
}
