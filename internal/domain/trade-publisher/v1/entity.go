package tradepublisherv1

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
)

// TradeEventPayload is the wire format of one trade-stream event.
type TradeEventPayload struct {
	TradeID     string          `json:"tradeID"`
	BuyOrderID  string          `json:"buyOrderID"`
	SellOrderID string          `json:"sellOrderID"`
	TakerSide   string          `json:"takerSide"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   int64           `json:"timestamp"`
}

// CreateFromTrade creates a trade event from a trade and the taker order that
// triggered it. The taker side determines which order id bought and which sold.
func CreateFromTrade(trade *orderbookv1.Trade, taker *orderbookv1.Order) *TradeEventPayload {
	event := &TradeEventPayload{
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Price:     trade.Price,
		Quantity:  trade.Quantity,
		Timestamp: trade.Timestamp,
	}

	if taker.IsBuy() {
		event.BuyOrderID = trade.TakerOrderID
		event.SellOrderID = trade.MakerOrderID
		event.TakerSide = "buy"
	} else {
		event.BuyOrderID = trade.MakerOrderID
		event.SellOrderID = trade.TakerOrderID
		event.TakerSide = "sell"
	}

	return event
}

// ToBytes converts the trade event to a byte array.
func ToBytes(event *TradeEventPayload) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		return nil
	}

	return data
}

// FromBytes converts a byte array to a trade event.
func FromBytes(data []byte) *TradeEventPayload {
	var event TradeEventPayload
	if err := json.Unmarshal(data, &event); err != nil {
		return nil
	}
	return &event
}
