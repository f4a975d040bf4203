package ordercachev1

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
)

// OpenOrderPayload is the cache representation of one open order.
type OpenOrderPayload struct {
	OrderID         string          `json:"orderID"`
	AccountID       string          `json:"accountID"`
	Side            string          `json:"side"`
	Type            string          `json:"orderType"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	InitialQuantity decimal.Decimal `json:"initialQuantity"`
	Quantity        decimal.Decimal `json:"quantity"`
	Timestamp       int64           `json:"timestamp"`
}

// FromOrder builds the cache payload for an open order.
func FromOrder(order *orderbookv1.Order) *OpenOrderPayload {
	return &OpenOrderPayload{
		OrderID:         order.ID,
		AccountID:       order.AccountID,
		Side:            string(order.Side),
		Type:            string(order.Type),
		Symbol:          order.Symbol,
		Price:           order.Price,
		InitialQuantity: order.InitialQuantity,
		Quantity:        order.Quantity,
		Timestamp:       order.Timestamp,
	}
}

// ToBytes converts the payload to a byte array.
func ToBytes(payload *OpenOrderPayload) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	return data
}

// FromBytes converts a byte array to a payload.
func FromBytes(data []byte) *OpenOrderPayload {
	var payload OpenOrderPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return &payload
}
