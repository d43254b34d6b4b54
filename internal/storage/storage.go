package storage

import (
	"time"

	"github.com/milkywaybrain/cryptofeed/internal/candle"
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/shopspring/decimal"
)

// Trade represents final form of market trade info received from exchange
// ready to store.
type Trade struct {
	Stream    string
	TradeID   uint64
	Side      string
	Size      decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Candle is one closed candle of a timeframe ready to store.
type Candle struct {
	Timeframe string
	Start     time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Trades    int
}

// TradesFromEvents converts a flushed trade batch into storage rows.
func TradesFromEvents(stream string, events []market.TradeEvent) []Trade {
	data := make([]Trade, 0, len(events))
	for _, ev := range events {
		data = append(data, Trade{
			Stream:    stream,
			TradeID:   ev.TradeID,
			Side:      ev.Side(),
			Size:      ev.Quantity,
			Price:     ev.Price,
			Timestamp: ev.Timestamp(),
		})
	}
	return data
}

// CandlesFromAggregate converts aggregated candles into storage rows.
func CandlesFromAggregate(tf candle.Timeframe, candles []candle.Candle) []Candle {
	data := make([]Candle, 0, len(candles))
	for _, c := range candles {
		data = append(data, Candle{
			Timeframe: tf.String(),
			Start:     time.UnixMilli(c.IntervalStart).UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Trades:    c.Trades,
		})
	}
	return data
}
