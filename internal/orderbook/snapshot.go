package orderbook

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// PriceLevel is one row of a depth snapshot. Cumulative is the running sum of
// quantity from the first row of the side up to and including this one.
type PriceLevel struct {
	Price        decimal.Decimal
	PriceText    string
	Quantity     decimal.Decimal
	QuantityText string
	Cumulative   decimal.Decimal
}

// Snapshot is a read only projection of the replica.
type Snapshot struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Total returns the sum of all quantities of a side, which is the last
// cumulative value.
func Total(side []PriceLevel) decimal.Decimal {
	if len(side) == 0 {
		return decimal.Zero
	}
	return side[len(side)-1].Cumulative
}

// Top returns at most n rows from the start of a side.
func Top(side []PriceLevel, n int) []PriceLevel {
	if n <= 0 || n >= len(side) {
		return side
	}
	return side[:n]
}

type jsonLevel struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Cumulative string `json:"cumulativeQuantity"`
}

type jsonSnapshot struct {
	Bids []jsonLevel `json:"bids"`
	Asks []jsonLevel `json:"asks"`
}

func toJSON(side []PriceLevel) []jsonLevel {
	out := make([]jsonLevel, len(side))
	for i, l := range side {
		out[i] = jsonLevel{Price: l.PriceText, Quantity: l.QuantityText, Cumulative: l.Cumulative.String()}
	}
	return out
}

// MarshalJSON keeps the wire text of prices and quantities.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(jsonSnapshot{Bids: toJSON(s.Bids), Asks: toJSON(s.Asks)})
}
