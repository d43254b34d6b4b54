// Package orderbook maintains a local replica of an exchange order book from
// its incremental diff stream.
//
// A Replica has a single writer: the goroutine that receives the diffs of one
// subscription. Snapshots handed out are fresh copies and stay valid after
// later diffs are applied.
package orderbook

import (
	"sort"

	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidLevel is returned for a diff which would corrupt the replica.
var ErrInvalidLevel = errors.New("invalid price level")

// Direction is the price order of one side of a snapshot.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Order selects the price direction of each side of a snapshot.
type Order struct {
	Bids Direction
	Asks Direction
}

// BestFirst orders both sides from the best price outward.
var BestFirst = Order{Bids: Descending, Asks: Ascending}

// level is a resting quantity at one price. Text fields keep the wire form.
type level struct {
	price     decimal.Decimal
	priceText string
	qty       decimal.Decimal
	qtyText   string
}

// Replica is the two sided price level map of one subscription.
type Replica struct {
	order Order
	bids  map[string]level
	asks  map[string]level
}

// New creates an empty replica which produces snapshots in the given order.
func New(order Order) *Replica {
	return &Replica{
		order: order,
		bids:  make(map[string]level),
		asks:  make(map[string]level),
	}
}

// ApplyDiff applies every pair of diff and returns the resulting snapshot.
// A zero quantity removes the price, any other quantity replaces it.
// A diff containing an invalid pair is rejected as a whole and leaves the
// replica untouched.
func (r *Replica) ApplyDiff(diff market.OrderBookDiff) (Snapshot, error) {
	if err := validate(diff.Bids); err != nil {
		return Snapshot{}, errors.WithMessage(err, "bids")
	}
	if err := validate(diff.Asks); err != nil {
		return Snapshot{}, errors.WithMessage(err, "asks")
	}
	merge(diff.Bids, r.bids)
	merge(diff.Asks, r.asks)
	return r.Snapshot(), nil
}

func validate(levels []market.Level) error {
	for _, l := range levels {
		if l.Quantity.IsNegative() {
			return errors.Wrapf(ErrInvalidLevel, "negative quantity %v at price %v", l.QuantityText, l.PriceText)
		}
		if l.Price.IsNegative() {
			return errors.Wrapf(ErrInvalidLevel, "negative price %v", l.PriceText)
		}
	}
	return nil
}

func merge(levels []market.Level, book map[string]level) {
	for _, l := range levels {
		// String normalises trailing zeros, "100.00" and "100.0" are one key.
		key := l.Price.String()
		if l.IsRemoval() {
			delete(book, key)
			continue
		}
		book[key] = level{price: l.Price, priceText: l.PriceText, qty: l.Quantity, qtyText: l.QuantityText}
	}
}

// Snapshot returns a copy of the current book.
func (r *Replica) Snapshot() Snapshot {
	return Snapshot{
		Bids: depth(r.bids, r.order.Bids),
		Asks: depth(r.asks, r.order.Asks),
	}
}

// Len returns the number of bid and ask levels.
func (r *Replica) Len() (bids int, asks int) {
	return len(r.bids), len(r.asks)
}

// BestBid returns the highest bid. ok is false on an empty side.
func (r *Replica) BestBid() (price decimal.Decimal, ok bool) {
	for _, l := range r.bids {
		if !ok || l.price.GreaterThan(price) {
			price, ok = l.price, true
		}
	}
	return price, ok
}

// BestAsk returns the lowest ask. ok is false on an empty side.
func (r *Replica) BestAsk() (price decimal.Decimal, ok bool) {
	for _, l := range r.asks {
		if !ok || l.price.LessThan(price) {
			price, ok = l.price, true
		}
	}
	return price, ok
}

func depth(book map[string]level, dir Direction) []PriceLevel {
	out := make([]PriceLevel, 0, len(book))
	for _, l := range book {
		out = append(out, PriceLevel{
			Price:        l.price,
			PriceText:    l.priceText,
			Quantity:     l.qty,
			QuantityText: l.qtyText,
		})
	}
	if dir == Descending {
		sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	}
	cum := decimal.Zero
	for i := range out {
		cum = cum.Add(out[i].Quantity)
		out[i].Cumulative = cum
	}
	return out
}
