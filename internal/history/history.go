// Package history keeps the most recent trades in arrival order.
package history

import (
	"sync"

	"github.com/milkywaybrain/cryptofeed/internal/market"
)

// History is a fixed capacity, chronologically ordered trade sequence.
// Append is the only mutation point; readers get copies.
type History struct {
	mu       sync.RWMutex
	capacity int
	trades   []market.TradeEvent
}

// New creates an empty history holding at most capacity trades.
func New(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Append adds trades after the current ones and drops the oldest so that at
// most capacity trades remain. It returns a copy of the resulting sequence.
func (h *History) Append(trades []market.TradeEvent) []market.TradeEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := len(h.trades) + len(trades)
	skip := 0
	if total > h.capacity {
		skip = total - h.capacity
	}

	// A new backing array every time, so slices handed out earlier never
	// observe later appends.
	next := make([]market.TradeEvent, 0, total-skip)
	if skip < len(h.trades) {
		next = append(next, h.trades[skip:]...)
		next = append(next, trades...)
	} else {
		next = append(next, trades[skip-len(h.trades):]...)
	}
	h.trades = next

	out := make([]market.TradeEvent, len(next))
	copy(out, next)
	return out
}

// Trades returns a copy of the retained trades, oldest first.
func (h *History) Trades() []market.TradeEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]market.TradeEvent, len(h.trades))
	copy(out, h.trades)
	return out
}

// Last returns the most recent trade. ok is false when empty.
func (h *History) Last() (trade market.TradeEvent, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.trades) == 0 {
		return market.TradeEvent{}, false
	}
	return h.trades[len(h.trades)-1], true
}

// Len returns the number of retained trades.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trades)
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return h.capacity
}
