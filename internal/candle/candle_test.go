package candle

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(ms int64, price, qty string) market.TradeEvent {
	return market.TradeEvent{
		TradeTime:    ms,
		Price:        decimal.RequireFromString(price),
		PriceText:    price,
		Quantity:     decimal.RequireFromString(qty),
		QuantityText: qty,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregateExampleScenario(t *testing.T) {
	candles := Aggregate([]market.TradeEvent{
		trade(100, "10", "1"),
		trade(1050, "12", "1"),
		trade(2200, "11", "1"),
	}, OneSecond)

	require.Len(t, candles, 3)
	first := candles[0]
	assert.Equal(t, int64(0), first.IntervalStart)
	assert.True(t, first.Open.Equal(dec("10")))
	assert.True(t, first.Close.Equal(dec("10")))

	second := candles[1]
	assert.Equal(t, int64(1000), second.IntervalStart)
	assert.True(t, second.Open.Equal(dec("12")))

	last := candles[2]
	assert.Equal(t, int64(2000), last.IntervalStart)
	for _, v := range []decimal.Decimal{last.Open, last.High, last.Low, last.Close} {
		assert.True(t, v.Equal(dec("11")))
	}
}

func TestAggregateOpenHighLowCloseWithinBucket(t *testing.T) {
	candles := Aggregate([]market.TradeEvent{
		trade(100, "10", "1"),
		trade(900, "12", "0.5"),
		trade(500, "9", "0.25"),
		trade(999, "11", "2"),
	}, OneSecond)

	require.Len(t, candles, 1)
	c := candles[0]
	assert.True(t, c.Open.Equal(dec("10")))
	assert.True(t, c.High.Equal(dec("12")))
	assert.True(t, c.Low.Equal(dec("9")))
	assert.True(t, c.Close.Equal(dec("11")))
	assert.True(t, c.Volume.Equal(dec("3.75")))
	assert.Equal(t, 4, c.Trades)
}

func TestAggregateSortsBuckets(t *testing.T) {
	candles := Aggregate([]market.TradeEvent{
		trade(5000, "1", "1"),
		trade(1000, "2", "1"),
		trade(3000, "3", "1"),
	}, OneSecond)
	require.Len(t, candles, 3)
	assert.Equal(t, []int64{1000, 3000, 5000}, []int64{candles[0].IntervalStart, candles[1].IntervalStart, candles[2].IntervalStart})
}

func TestPartitionCompleteness(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	var trades []market.TradeEvent
	total := decimal.Zero
	for i := 0; i < 2000; i++ {
		qty := strconv.Itoa(rnd.Intn(5)) + "." + strconv.Itoa(rnd.Intn(1000000))
		tr := trade(rnd.Int63n(int64(30*24*time.Hour/time.Millisecond)), strconv.Itoa(100+rnd.Intn(50)), qty)
		total = total.Add(tr.Quantity)
		trades = append(trades, tr)
	}

	for _, tf := range All {
		candles := Aggregate(trades, tf)
		sum := decimal.Zero
		count := 0
		for i, c := range candles {
			sum = sum.Add(c.Volume)
			count += c.Trades
			assert.True(t, c.Low.LessThanOrEqual(c.Open), tf.String())
			assert.True(t, c.Low.LessThanOrEqual(c.Close), tf.String())
			assert.True(t, c.High.GreaterThanOrEqual(c.Open), tf.String())
			assert.True(t, c.High.GreaterThanOrEqual(c.Close), tf.String())
			assert.Equal(t, int64(0), c.IntervalStart%tf.Millis())
			if i > 0 {
				assert.Less(t, candles[i-1].IntervalStart, c.IntervalStart)
			}
		}
		assert.Equal(t, len(trades), count, tf.String())
		assert.True(t, sum.Equal(total), tf.String())
	}
}

func TestMovingAverageAvailability(t *testing.T) {
	var trades []market.TradeEvent
	for i := 0; i < 120; i++ {
		trades = append(trades, trade(int64(i)*1000, "42.5", "1"))
	}
	candles := Aggregate(trades, OneSecond)
	require.Len(t, candles, 120)

	c := dec("42.5")
	for i, cd := range candles {
		if i < 6 {
			assert.True(t, cd.MA7.IsZero(), i)
			assert.False(t, cd.HasMA(MA7), i)
		} else {
			assert.True(t, cd.HasMA(MA7), i)
			assert.True(t, cd.MA7.Equal(c), i)
		}
		assert.Equal(t, i >= 24, cd.HasMA(MA25), i)
		if i >= 24 {
			assert.True(t, cd.MA25.Equal(c), i)
		} else {
			assert.True(t, cd.MA25.IsZero(), i)
		}
		assert.Equal(t, i >= 98, cd.HasMA(MA99), i)
		if i >= 98 {
			assert.True(t, cd.MA99.Equal(c), i)
		} else {
			assert.True(t, cd.MA99.IsZero(), i)
		}
	}
}

func TestMovingAverageTrailingWindow(t *testing.T) {
	var trades []market.TradeEvent
	for i := 1; i <= 8; i++ {
		trades = append(trades, trade(int64(i)*1000, strconv.Itoa(i), "1"))
	}
	candles := Aggregate(trades, OneSecond)
	require.Len(t, candles, 8)
	// closes 1..7 -> 4, closes 2..8 -> 5
	assert.True(t, candles[6].MA7.Equal(dec("4")))
	assert.True(t, candles[7].MA7.Equal(dec("5")))
}

func TestCandleJSONUndefinedMovingAverage(t *testing.T) {
	var trades []market.TradeEvent
	for i := 1; i <= 8; i++ {
		trades = append(trades, trade(int64(i)*1000, strconv.Itoa(i), "1"))
	}
	candles := Aggregate(trades, OneSecond)

	decode := func(c Candle) map[string]interface{} {
		data, err := jsoniter.Marshal(c)
		require.NoError(t, err)
		var out map[string]interface{}
		require.NoError(t, jsoniter.Unmarshal(data, &out))
		return out
	}

	first := decode(candles[0])
	assert.Nil(t, first["ma7"])
	assert.Contains(t, first, "ma7")
	assert.Equal(t, "1", first["open"])
	assert.Equal(t, float64(1), first["trades"])

	last := decode(candles[7])
	assert.Equal(t, "5", last["ma7"])
	assert.Nil(t, last["ma25"])
	assert.Nil(t, last["ma99"])
	assert.Equal(t, float64(8000), last["intervalStart"])
}

func TestAnalytics(t *testing.T) {
	c := Candle{Open: dec("100"), High: dec("110"), Low: dec("95"), Close: dec("105")}
	assert.True(t, c.Change().Equal(dec("5")))
	assert.True(t, c.ChangePercent().Equal(dec("5")))
	assert.True(t, c.Amplitude().Equal(dec("15")))

	zero := Candle{High: dec("1"), Close: dec("1")}
	assert.True(t, zero.ChangePercent().IsZero())
	assert.True(t, zero.Amplitude().IsZero())
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, OneHour))
	assert.Empty(t, Aggregate([]market.TradeEvent{trade(1, "1", "1")}, Timeframe(42)))
}

func TestNegativeTradeTimeFloors(t *testing.T) {
	candles := Aggregate([]market.TradeEvent{trade(-1, "1", "1")}, OneSecond)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(-1000), candles[0].IntervalStart)
}

func TestParseTimeframe(t *testing.T) {
	for _, name := range []string{"1s", "15m", "1H", "4H", "1D", "1W"} {
		tf, err := ParseTimeframe(name)
		require.NoError(t, err)
		assert.Equal(t, name, tf.String())
	}
	tf, _ := ParseTimeframe("1W")
	assert.Equal(t, 7*24*time.Hour, tf.Duration())

	_, err := ParseTimeframe("5m")
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))
}

func TestSummarize(t *testing.T) {
	s := Summarize(Aggregate([]market.TradeEvent{
		trade(0, "10", "1"),
		trade(1000, "14", "2"),
		trade(2000, "8", "3"),
		trade(3000, "12", "4"),
	}, OneSecond))
	assert.True(t, s.Open.Equal(dec("10")))
	assert.True(t, s.High.Equal(dec("14")))
	assert.True(t, s.Low.Equal(dec("8")))
	assert.True(t, s.Close.Equal(dec("12")))
	assert.True(t, s.Volume.Equal(dec("10")))
	assert.True(t, s.ChangePercent().Equal(dec("20")))
	assert.True(t, Summarize(nil).Volume.IsZero())
}
