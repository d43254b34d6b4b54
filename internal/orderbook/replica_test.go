package orderbook

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lvl(price, qty string) market.Level {
	return market.Level{
		Price:        decimal.RequireFromString(price),
		PriceText:    price,
		Quantity:     decimal.RequireFromString(qty),
		QuantityText: qty,
	}
}

func rows(side []PriceLevel) [][3]string {
	out := make([][3]string, len(side))
	for i, l := range side {
		out[i] = [3]string{l.PriceText, l.Quantity.String(), l.Cumulative.String()}
	}
	return out
}

func TestApplyDiffExampleScenario(t *testing.T) {
	r := New(Order{})

	snap, err := r.ApplyDiff(market.OrderBookDiff{
		Bids: []market.Level{lvl("100.00", "1.5")},
		Asks: []market.Level{lvl("101.00", "2.0")},
	})
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"100.00", "1.5", "1.5"}}, rows(snap.Bids))
	assert.Equal(t, [][3]string{{"101.00", "2", "2"}}, rows(snap.Asks))

	snap, err = r.ApplyDiff(market.OrderBookDiff{
		Bids: []market.Level{lvl("100.00", "0.00000000")},
	})
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Len(t, snap.Asks, 1)
}

func TestZeroQuantityRemoval(t *testing.T) {
	r := New(Order{})
	_, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("10", "1")}})
	require.NoError(t, err)

	// absent price is a no-op
	snap, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("11", "0.00000000")}})
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 1)

	snap, err = r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("10.000", "0.00000000")}})
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
}

func TestIdempotentReplace(t *testing.T) {
	once := New(Order{})
	twice := New(Order{})
	diff := market.OrderBookDiff{Asks: []market.Level{lvl("50.5", "3")}}

	a, err := once.ApplyDiff(diff)
	require.NoError(t, err)
	_, err = twice.ApplyDiff(diff)
	require.NoError(t, err)
	b, err := twice.ApplyDiff(diff)
	require.NoError(t, err)

	assert.Equal(t, rows(a.Asks), rows(b.Asks))
}

func TestReplaceIsNotIncrement(t *testing.T) {
	r := New(Order{})
	_, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("10", "1")}})
	require.NoError(t, err)
	snap, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("10.0", "4")}})
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"10.0", "4", "4"}}, rows(snap.Bids))
}

func TestSnapshotDirections(t *testing.T) {
	diff := market.OrderBookDiff{
		Bids: []market.Level{lvl("99", "1"), lvl("101", "2"), lvl("100", "3")},
		Asks: []market.Level{lvl("103", "1"), lvl("102", "2")},
	}

	asc, err := New(Order{}).ApplyDiff(diff)
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"99", "1", "1"}, {"100", "3", "4"}, {"101", "2", "6"}}, rows(asc.Bids))

	best, err := New(BestFirst).ApplyDiff(diff)
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"101", "2", "2"}, {"100", "3", "5"}, {"99", "1", "6"}}, rows(best.Bids))
	assert.Equal(t, [][3]string{{"102", "2", "2"}, {"103", "1", "3"}}, rows(best.Asks))
}

func TestDecimalKeysDoNotCollideLikeFloats(t *testing.T) {
	r := New(Order{})
	snap, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{
		lvl("0.30000000000000001", "1"),
		lvl("0.3", "2"),
	}})
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 2)
}

func TestInvalidDiffLeavesReplicaUntouched(t *testing.T) {
	r := New(Order{})
	_, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("10", "1")}})
	require.NoError(t, err)

	_, err = r.ApplyDiff(market.OrderBookDiff{
		Bids: []market.Level{lvl("10", "0"), lvl("11", "5")},
		Asks: []market.Level{lvl("12", "-1")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLevel))

	bids, asks := r.Len()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 0, asks)
}

func TestCrossedBookIsKept(t *testing.T) {
	r := New(BestFirst)
	_, err := r.ApplyDiff(market.OrderBookDiff{
		Bids: []market.Level{lvl("105", "1")},
		Asks: []market.Level{lvl("100", "1")},
	})
	require.NoError(t, err)
	bid, ok := r.BestBid()
	require.True(t, ok)
	ask, ok := r.BestAsk()
	require.True(t, ok)
	assert.True(t, bid.GreaterThan(ask))
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(Order{})
	first, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("1", "1")}})
	require.NoError(t, err)
	_, err = r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("1", "0"), lvl("2", "2")}})
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"1", "1", "1"}}, rows(first.Bids))
}

func TestCumulativeDepthProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	r := New(BestFirst)
	for i := 0; i < 200; i++ {
		var diff market.OrderBookDiff
		for j := 0; j < 5; j++ {
			price := strconv.Itoa(90+rnd.Intn(20)) + "." + strconv.Itoa(rnd.Intn(100))
			qty := "0.00000000"
			if rnd.Intn(4) > 0 {
				qty = strconv.Itoa(rnd.Intn(10)) + "." + strconv.Itoa(1+rnd.Intn(99))
			}
			if rnd.Intn(2) == 0 {
				diff.Bids = append(diff.Bids, lvl(price, qty))
			} else {
				diff.Asks = append(diff.Asks, lvl(price, qty))
			}
		}
		snap, err := r.ApplyDiff(diff)
		require.NoError(t, err)

		for _, side := range [][]PriceLevel{snap.Bids, snap.Asks} {
			sum := decimal.Zero
			prev := decimal.Zero
			seen := map[string]bool{}
			for _, l := range side {
				require.True(t, l.Quantity.IsPositive())
				require.False(t, seen[l.Price.String()], "duplicate price")
				seen[l.Price.String()] = true
				sum = sum.Add(l.Quantity)
				require.True(t, l.Cumulative.GreaterThanOrEqual(prev))
				prev = l.Cumulative
			}
			require.True(t, Total(side).Equal(sum))
		}
	}
}

func TestSnapshotMarshalJSON(t *testing.T) {
	r := New(Order{})
	snap, err := r.ApplyDiff(market.OrderBookDiff{Bids: []market.Level{lvl("100.00", "1.50000000")}})
	require.NoError(t, err)
	b, err := snap.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"bids":[{"price":"100.00","quantity":"1.50000000","cumulativeQuantity":"1.5"}],"asks":[]}`, string(b))
}

func TestTop(t *testing.T) {
	side := []PriceLevel{{PriceText: "1"}, {PriceText: "2"}, {PriceText: "3"}}
	assert.Len(t, Top(side, 2), 2)
	assert.Len(t, Top(side, 0), 3)
	assert.Len(t, Top(side, 9), 3)
}
