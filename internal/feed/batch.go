package feed

import "github.com/milkywaybrain/cryptofeed/internal/market"

// batch accumulates the trades of one stream between two flushes.
// It is owned by the processing goroutine of its subscription.
type batch struct {
	trades []market.TradeEvent
	size   int
}

func newBatch(size int) *batch {
	return &batch{trades: make([]market.TradeEvent, 0, size), size: size}
}

func (b *batch) add(trade market.TradeEvent) {
	b.trades = append(b.trades, trade)
}

// flush hands over the accumulated trades and starts a new batch.
// ok is false when nothing was accumulated, empty batches are never emitted.
func (b *batch) flush() (trades []market.TradeEvent, ok bool) {
	if len(b.trades) == 0 {
		return nil, false
	}
	trades = b.trades
	b.trades = make([]market.TradeEvent, 0, b.size)
	return trades, true
}

func (b *batch) len() int {
	return len(b.trades)
}
