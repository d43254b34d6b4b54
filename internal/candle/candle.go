// Package candle buckets trades into OHLCV candles and derives moving
// averages over their closing prices.
package candle

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/shopspring/decimal"
)

// Moving average windows, in candles.
const (
	MA7  = 7
	MA25 = 25
	MA99 = 99
)

var hundred = decimal.NewFromInt(100)

// Candle is the OHLCV summary of one timeframe bucket.
// A moving average is zero until enough preceding candles exist, see HasMA.
type Candle struct {
	IntervalStart int64           `json:"intervalStart"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	Trades        int             `json:"trades"`
	MA7           decimal.Decimal `json:"ma7"`
	MA25          decimal.Decimal `json:"ma25"`
	MA99          decimal.Decimal `json:"ma99"`

	index int
}

// HasMA reports whether the k candle moving average is defined for c.
func (c Candle) HasMA(k int) bool {
	return k > 0 && c.index >= k-1
}

type jsonCandle struct {
	IntervalStart int64            `json:"intervalStart"`
	Open          decimal.Decimal  `json:"open"`
	High          decimal.Decimal  `json:"high"`
	Low           decimal.Decimal  `json:"low"`
	Close         decimal.Decimal  `json:"close"`
	Volume        decimal.Decimal  `json:"volume"`
	Trades        int              `json:"trades"`
	MA7           *decimal.Decimal `json:"ma7"`
	MA25          *decimal.Decimal `json:"ma25"`
	MA99          *decimal.Decimal `json:"ma99"`
}

// MarshalJSON writes an undefined moving average as null.
func (c Candle) MarshalJSON() ([]byte, error) {
	ma := func(k int, v decimal.Decimal) *decimal.Decimal {
		if !c.HasMA(k) {
			return nil
		}
		return &v
	}
	return jsoniter.Marshal(jsonCandle{
		IntervalStart: c.IntervalStart,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Volume:        c.Volume,
		Trades:        c.Trades,
		MA7:           ma(MA7, c.MA7),
		MA25:          ma(MA25, c.MA25),
		MA99:          ma(MA99, c.MA99),
	})
}

// Change is close minus open.
func (c Candle) Change() decimal.Decimal {
	return c.Close.Sub(c.Open)
}

// ChangePercent is the change relative to open, in percent. Zero when open is zero.
func (c Candle) ChangePercent() decimal.Decimal {
	if c.Open.IsZero() {
		return decimal.Zero
	}
	return c.Change().Div(c.Open).Mul(hundred)
}

// Amplitude is the high to low range relative to open, in percent. Zero when open is zero.
func (c Candle) Amplitude() decimal.Decimal {
	if c.Open.IsZero() {
		return decimal.Zero
	}
	return c.High.Sub(c.Low).Div(c.Open).Mul(hundred)
}

// Aggregate buckets trades by tf and returns the candles in ascending bucket
// order with their moving averages filled in. Within a bucket open is the
// first trade processed and close the last one, in slice order.
func Aggregate(trades []market.TradeEvent, tf Timeframe) []Candle {
	size := tf.Millis()
	if len(trades) == 0 || size <= 0 {
		return []Candle{}
	}

	buckets := make(map[int64]*Candle)
	for _, t := range trades {
		start := floorDiv(t.TradeTime, size) * size
		c, ok := buckets[start]
		if !ok {
			buckets[start] = &Candle{
				IntervalStart: start,
				Open:          t.Price,
				High:          t.Price,
				Low:           t.Price,
				Close:         t.Price,
				Volume:        t.Quantity,
				Trades:        1,
			}
			continue
		}
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume = c.Volume.Add(t.Quantity)
		c.Trades++
	}

	candles := make([]Candle, 0, len(buckets))
	for _, c := range buckets {
		candles = append(candles, *c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].IntervalStart < candles[j].IntervalStart })

	for i := range candles {
		candles[i].index = i
	}
	fillMA(candles, MA7, func(c *Candle, v decimal.Decimal) { c.MA7 = v })
	fillMA(candles, MA25, func(c *Candle, v decimal.Decimal) { c.MA25 = v })
	fillMA(candles, MA99, func(c *Candle, v decimal.Decimal) { c.MA99 = v })
	return candles
}

// fillMA sets the trailing k close average using a rolling sum.
func fillMA(candles []Candle, k int, set func(*Candle, decimal.Decimal)) {
	div := decimal.NewFromInt(int64(k))
	sum := decimal.Zero
	for i := range candles {
		sum = sum.Add(candles[i].Close)
		if i >= k {
			sum = sum.Sub(candles[i-k].Close)
		}
		if i >= k-1 {
			set(&candles[i], sum.Div(div))
		}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Summary is the range statistic over a run of candles.
type Summary struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Change is close minus open.
func (s Summary) Change() decimal.Decimal {
	return s.Close.Sub(s.Open)
}

// ChangePercent is the change relative to open, in percent. Zero when open is zero.
func (s Summary) ChangePercent() decimal.Decimal {
	if s.Open.IsZero() {
		return decimal.Zero
	}
	return s.Change().Div(s.Open).Mul(hundred)
}

// Summarize folds candles, which must be in ascending order, into one range.
func Summarize(candles []Candle) Summary {
	if len(candles) == 0 {
		return Summary{}
	}
	s := Summary{
		Open:  candles[0].Open,
		High:  candles[0].High,
		Low:   candles[0].Low,
		Close: candles[len(candles)-1].Close,
	}
	for _, c := range candles {
		if c.High.GreaterThan(s.High) {
			s.High = c.High
		}
		if c.Low.LessThan(s.Low) {
			s.Low = c.Low
		}
		s.Volume = s.Volume.Add(c.Volume)
	}
	return s
}
