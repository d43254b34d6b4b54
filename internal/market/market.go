// Package market holds the data model shared by the ingestion engine and the
// decoding of the exchange wire format into it.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is one trade print received from the exchange.
// Price and quantity keep their wire text next to the exact decimal value so
// display code never has to reformat them.
type TradeEvent struct {
	EventTime    int64           `json:"eventTime"`
	TradeID      uint64          `json:"tradeId"`
	Price        decimal.Decimal `json:"-"`
	PriceText    string          `json:"price"`
	Quantity     decimal.Decimal `json:"-"`
	QuantityText string          `json:"quantity"`
	TradeTime    int64           `json:"tradeTime"`
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

// Side classifies the trade from the taker's point of view.
func (t TradeEvent) Side() string {
	if t.IsBuyerMaker {
		return "sell"
	}
	return "buy"
}

// Timestamp returns the trade time, sent in milliseconds.
func (t TradeEvent) Timestamp() time.Time {
	return time.Unix(0, t.TradeTime*int64(time.Millisecond)).UTC()
}

// Level is one (price, quantity) pair of a diff message.
type Level struct {
	Price        decimal.Decimal
	PriceText    string
	Quantity     decimal.Decimal
	QuantityText string
}

// IsRemoval reports whether the level deletes its price.
func (l Level) IsRemoval() bool {
	return l.Quantity.IsZero()
}

// OrderBookDiff is one incremental order book update.
type OrderBookDiff struct {
	EventTime     int64
	FirstUpdateID int64
	LastUpdateID  int64
	Bids          []Level
	Asks          []Level
}
