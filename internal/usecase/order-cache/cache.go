package ordercache

import (
	"context"
	"fmt"

	ordercachev1 "github.com/robertjkeck2/KEX/internal/domain/order-cache/v1"
	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
	"github.com/robertjkeck2/KEX/pkg/errors"
	"github.com/robertjkeck2/KEX/pkg/logger"
	"github.com/robertjkeck2/KEX/pkg/redis"
)

// Cache mirrors open orders into Redis, one key per order id.
type Cache struct {
	symbol      string
	logger      *logger.Logger
	redisclient redis.Client
}

// NewCache creates a new open-order cache backed by the given Redis client.
func NewCache(redisclient redis.Client, symbol string, logger *logger.Logger) *Cache {
	return &Cache{
		symbol:      symbol,
		redisclient: redisclient,
		logger:      logger,
	}
}

func (c *Cache) key(orderID string) string {
	return fmt.Sprintf("orders:%s:%s", c.symbol, orderID)
}

// Apply reconciles the cache with a book call's delta: every order that left
// the book is deleted, and the call's order is written if it is still open.
func (c *Cache) Apply(ctx context.Context, result *orderbookv1.Result) error {
	if result == nil {
		return nil
	}

	completed := make(map[string]struct{}, len(result.Completed))
	for _, order := range result.Completed {
		completed[order.ID] = struct{}{}

		if _, err := c.redisclient.Del(ctx, c.key(order.ID)); err != nil {
			c.logger.ErrorContext(ctx, err, logger.Field{
				Key:   "orderID",
				Value: order.ID,
			}, logger.Field{
				Key:   "action",
				Value: "delete cached order",
			})
			return errors.NewTracer("order_cache_delete_error").Wrap(err)
		}
	}

	for _, maker := range result.PartiallyFilled {
		if err := c.set(ctx, ordercachev1.FromOrder(maker)); err != nil {
			return err
		}
	}

	order := result.Order
	if order == nil {
		return nil
	}
	if _, done := completed[order.ID]; done {
		return nil
	}

	if err := c.set(ctx, ordercachev1.FromOrder(order)); err != nil {
		return err
	}

	return nil
}

// Rebuild repopulates the cache from a restored snapshot.
func (c *Cache) Rebuild(ctx context.Context, snapshot *snapshotv1.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	for _, bookOrder := range snapshot.Orders {
		payload := &ordercachev1.OpenOrderPayload{
			OrderID:         bookOrder.OrderID,
			AccountID:       bookOrder.AccountID,
			Side:            bookOrder.Side,
			Type:            bookOrder.Type,
			Symbol:          snapshot.Symbol,
			Price:           bookOrder.Price,
			InitialQuantity: bookOrder.InitialQuantity,
			Quantity:        bookOrder.Quantity,
			Timestamp:       bookOrder.Timestamp,
		}

		if err := c.set(ctx, payload); err != nil {
			return err
		}
	}

	c.logger.InfoContext(ctx, fmt.Sprintf("Order cache rebuilt for symbol %s", c.symbol), logger.Field{
		Key:   "openOrders",
		Value: len(snapshot.Orders),
	})
	return nil
}

// GetOpen returns the cached payload for an open order, or nil when the order
// is not in the cache.
func (c *Cache) GetOpen(ctx context.Context, orderID string) (*ordercachev1.OpenOrderPayload, error) {
	value, err := c.redisclient.Get(ctx, c.key(orderID))
	if err != nil {
		c.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "orderID",
			Value: orderID,
		}, logger.Field{
			Key:   "action",
			Value: "get cached order",
		})
		return nil, errors.NewTracer("order_cache_get_error").Wrap(err)
	}
	if value == "" {
		return nil, nil
	}

	payload := ordercachev1.FromBytes([]byte(value))
	if payload == nil {
		err := fmt.Errorf("corrupt cached payload for order %s", orderID)
		c.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "orderID",
			Value: orderID,
		})
		return nil, errors.NewTracer("order_cache_decode_error").Wrap(err)
	}

	return payload, nil
}

func (c *Cache) set(ctx context.Context, payload *ordercachev1.OpenOrderPayload) error {
	if err := c.redisclient.Set(ctx, c.key(payload.OrderID), ordercachev1.ToBytes(payload), 0); err != nil {
		c.logger.ErrorContext(ctx, err, logger.Field{
			Key:   "orderID",
			Value: payload.OrderID,
		}, logger.Field{
			Key:   "action",
			Value: "cache open order",
		})
		return errors.NewTracer("order_cache_set_error").Wrap(err)
	}
	return nil
}
