package ordercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordercachev1 "github.com/robertjkeck2/KEX/internal/domain/order-cache/v1"
	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
	"github.com/robertjkeck2/KEX/internal/usecase/orderbook"
	"github.com/robertjkeck2/KEX/pkg/logger"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	delErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Connect(ctx context.Context) error    { return nil }
func (f *fakeRedis) Disconnect(ctx context.Context) error { return nil }
func (f *fakeRedis) Ping(ctx context.Context) error       { return nil }
func (f *fakeRedis) Reconnect(ctx context.Context) bool   { return true }

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.data[key], nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = fmt.Sprintf("%s", value)
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	var deleted int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeRedis) keyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func newTestCache(t *testing.T) (*Cache, *fakeRedis) {
	log, err := logger.NewLogger()
	require.NoError(t, err)

	rclient := newFakeRedis()
	return NewCache(rclient, "KEQ", log), rclient
}

func limitQuote(accountID string, side orderbookv1.Side, price, quantity string) orderbookv1.Quote {
	return orderbookv1.Quote{
		AccountID: accountID,
		Side:      side,
		Type:      orderbookv1.OrderTypeLimit,
		Symbol:    "KEQ",
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString(quantity),
	}
}

func TestCache_Apply(t *testing.T) {
	t.Run("Resting order is cached", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		book := orderbook.NewOrderbook("KEQ")

		result, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)

		require.NoError(t, cache.Apply(context.Background(), result))

		key := fmt.Sprintf("orders:KEQ:%s", result.Order.ID)
		stored, err := rclient.Get(context.Background(), key)
		require.NoError(t, err)

		payload := ordercachev1.FromBytes([]byte(stored))
		require.NotNil(t, payload)
		assert.Equal(t, result.Order.ID, payload.OrderID)
		assert.Equal(t, "buyer", payload.AccountID)
		assert.True(t, payload.Quantity.Equal(decimal.RequireFromString("10")))
	})

	t.Run("Partial fill updates the maker and drops the taker", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		book := orderbook.NewOrderbook("KEQ")

		resting, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), resting))

		crossing, err := book.ProcessOrder(limitQuote("seller", orderbookv1.SideSell, "100.00", "4"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), crossing))

		// taker completed, only the partially filled maker stays cached
		assert.Equal(t, 1, rclient.keyCount())

		key := fmt.Sprintf("orders:KEQ:%s", resting.Order.ID)
		stored, err := rclient.Get(context.Background(), key)
		require.NoError(t, err)

		payload := ordercachev1.FromBytes([]byte(stored))
		require.NotNil(t, payload)
		assert.True(t, payload.Quantity.Equal(decimal.RequireFromString("6")))
		assert.True(t, payload.InitialQuantity.Equal(decimal.RequireFromString("10")))
	})

	t.Run("Full fill removes both sides", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		book := orderbook.NewOrderbook("KEQ")

		resting, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), resting))

		crossing, err := book.ProcessOrder(limitQuote("seller", orderbookv1.SideSell, "100.00", "10"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), crossing))

		assert.Equal(t, 0, rclient.keyCount())
	})

	t.Run("Cancel removes the cached order", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		book := orderbook.NewOrderbook("KEQ")

		placed, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), placed))

		cancelled, err := book.CancelOrder(placed.Order.ID)
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), cancelled))

		assert.Equal(t, 0, rclient.keyCount())
	})

	t.Run("Nil result is a no-op", func(t *testing.T) {
		cache, rclient := newTestCache(t)

		require.NoError(t, cache.Apply(context.Background(), nil))
		assert.Equal(t, 0, rclient.keyCount())
	})

	t.Run("Redis failure is propagated", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		rclient.setErr = errors.New("connection refused")
		book := orderbook.NewOrderbook("KEQ")

		result, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)

		assert.Error(t, cache.Apply(context.Background(), result))
	})
}

func TestCache_GetOpen(t *testing.T) {
	t.Run("Returns the cached open order", func(t *testing.T) {
		cache, _ := newTestCache(t)
		book := orderbook.NewOrderbook("KEQ")

		placed, err := book.ProcessOrder(limitQuote("buyer", orderbookv1.SideBuy, "100.00", "10"))
		require.NoError(t, err)
		require.NoError(t, cache.Apply(context.Background(), placed))

		payload, err := cache.GetOpen(context.Background(), placed.Order.ID)
		require.NoError(t, err)
		require.NotNil(t, payload)
		assert.Equal(t, placed.Order.ID, payload.OrderID)
		assert.Equal(t, "buyer", payload.AccountID)
		assert.True(t, payload.Quantity.Equal(decimal.RequireFromString("10")))
	})

	t.Run("Unknown order returns nil", func(t *testing.T) {
		cache, _ := newTestCache(t)

		payload, err := cache.GetOpen(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		require.NoError(t, err)
		assert.Nil(t, payload)
	})

	t.Run("Corrupt cached payload is an error", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		rclient.data["orders:KEQ:01ARZ3NDEKTSV4RRFFQ69G5FAV"] = "{not json"

		payload, err := cache.GetOpen(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.Error(t, err)
		assert.Nil(t, payload)
	})

	t.Run("Redis failure is propagated", func(t *testing.T) {
		cache, rclient := newTestCache(t)
		rclient.getErr = errors.New("connection refused")

		_, err := cache.GetOpen(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.Error(t, err)
	})
}

func TestCache_Rebuild(t *testing.T) {
	t.Run("Snapshot orders repopulate the cache", func(t *testing.T) {
		cache, rclient := newTestCache(t)

		snapshot := &snapshotv1.Snapshot{
			Symbol: "KEQ",
			Orders: []snapshotv1.BookOrder{
				{
					OrderID:         "01ARZ3NDEKTSV4RRFFQ69G5FAV",
					AccountID:       "acct1",
					Side:            "BUY",
					Type:            "LIMIT",
					Price:           decimal.RequireFromString("100.00"),
					InitialQuantity: decimal.RequireFromString("10"),
					Quantity:        decimal.RequireFromString("6"),
					Timestamp:       1000,
				},
				{
					OrderID:         "01BX5ZZKBKACTAV9WEVGEMMVS0",
					AccountID:       "acct2",
					Side:            "SELL",
					Type:            "LIMIT",
					Price:           decimal.RequireFromString("101.00"),
					InitialQuantity: decimal.RequireFromString("5"),
					Quantity:        decimal.RequireFromString("5"),
					Timestamp:       2000,
				},
			},
		}

		require.NoError(t, cache.Rebuild(context.Background(), snapshot))

		assert.Equal(t, 2, rclient.keyCount())

		stored, err := rclient.Get(context.Background(), "orders:KEQ:01ARZ3NDEKTSV4RRFFQ69G5FAV")
		require.NoError(t, err)
		payload := ordercachev1.FromBytes([]byte(stored))
		require.NotNil(t, payload)
		assert.Equal(t, "KEQ", payload.Symbol)
		assert.True(t, payload.Quantity.Equal(decimal.RequireFromString("6")))
	})

	t.Run("Nil snapshot is a no-op", func(t *testing.T) {
		cache, rclient := newTestCache(t)

		require.NoError(t, cache.Rebuild(context.Background(), nil))
		assert.Equal(t, 0, rclient.keyCount())
	})
}
