package ordercachev1

import (
	"context"

	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
)

// Cache mirrors the book's open orders into an external store so other
// services can look orders up without touching the engine.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=ordercachev1_mock
type Cache interface {
	// Apply reconciles the cache with the delta one book call produced.
	Apply(ctx context.Context, result *orderbookv1.Result) error
	// Rebuild repopulates the cache from a restored snapshot.
	Rebuild(ctx context.Context, snapshot *snapshotv1.Snapshot) error
	// GetOpen returns the cached open order, or nil when the order is not open.
	GetOpen(ctx context.Context, orderID string) (*OpenOrderPayload, error)
}
