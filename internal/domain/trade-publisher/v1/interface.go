package tradepublisherv1

import "context"

// TradePublisher defines the interface for publishing trade events downstream.
//
//go:generate mockgen -source interface.go -destination=mock/interface_mock.go -package=tradepublisherv1_mock
type TradePublisher interface {
	PublishTradeEvent(ctx context.Context, event *TradeEventPayload) error
}
