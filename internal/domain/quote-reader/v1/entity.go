package quotereaderv1

import (
	"github.com/shopspring/decimal"

	orderbookv1 "github.com/robertjkeck2/KEX/internal/domain/orderbook/v1"
)

// Action represents the mutating book operation a payload requests.
type Action string

const (
	// ActionPlace submits a new quote.
	ActionPlace Action = "place"
	// ActionCancel cancels a fully resting order by id.
	ActionCancel Action = "cancel"
	// ActionModify replaces a resting order with a new quote.
	ActionModify Action = "modify"
)

// QuoteRequestPayload is the wire format of one quote-stream message.
type QuoteRequestPayload struct {
	Action    Action                `json:"action"`
	OrderID   string                `json:"orderID"` // Set for cancel and modify
	AccountID string                `json:"accountID"`
	Side      orderbookv1.Side      `json:"side"`
	Type      orderbookv1.OrderType `json:"orderType"`
	Symbol    string                `json:"symbol"`
	Price     decimal.Decimal       `json:"price"`
	Quantity  decimal.Decimal       `json:"quantity"`
	Offset    int64                 `json:"-"` // Offset of the message in the stream
}

// Quote converts the payload to the book's quote type.
func (p *QuoteRequestPayload) Quote() orderbookv1.Quote {
	return orderbookv1.Quote{
		AccountID: p.AccountID,
		Side:      p.Side,
		Type:      p.Type,
		Symbol:    p.Symbol,
		Price:     p.Price,
		Quantity:  p.Quantity,
	}
}
