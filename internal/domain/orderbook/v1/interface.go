package orderbookv1

import (
	"github.com/shopspring/decimal"

	snapshotv1 "github.com/robertjkeck2/KEX/internal/domain/snapshot/v1"
)

// Orderbook defines the matching-engine contract consumed by the host. All
// mutating calls must be serialized by the caller; implementations hold no
// internal suspension points and run every call to completion.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=orderbookv1_mock
type Orderbook interface {
	ProcessOrder(quote Quote) (*Result, error)
	CancelOrder(orderID string) (*Result, error)
	ModifyOrder(orderID string, quote Quote) (*Result, error)

	BestBid() (decimal.Decimal, bool)
	BestAsk() (decimal.Decimal, bool)
	BidTotalVolume() decimal.Decimal
	AskTotalVolume() decimal.Decimal
	Bids() []*PriceLevel
	Asks() []*PriceLevel

	CreateSnapshot() *snapshotv1.Snapshot
	RestoreOrderbook(snapshot *snapshotv1.Snapshot) error
}
