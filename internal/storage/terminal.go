package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
)

// Terminal is for displaying data on terminal.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	depth int
}

// TerminalTimestamp is used as a format to display only the time.
const TerminalTimestamp = "15:04:05.999"

// NewTerminal initializes terminal display.
// Output writer is always os.Stdout except in case of testing where file will be set as output terminal.
// depth limits the number of levels shown per order book side.
func NewTerminal(out io.Writer, depth int) *Terminal {
	return &Terminal{out: out, depth: depth}
}

// CommitTrades batch outputs input trade data to terminal.
func (t *Terminal) CommitTrades(data []Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, trade := range data {
		fmt.Fprintf(t.out, "%-15s%-15s%-5s%20s%20s%20s\n\n", "Trade", trade.Stream, trade.Side, trade.Size.String(), trade.Price.String(), trade.Timestamp.Local().Format(TerminalTimestamp))
	}
}

// CommitBook outputs the best levels of an order book snapshot to terminal,
// asks above bids.
func (t *Terminal) CommitBook(stream string, snap orderbook.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%-15s%-15s%20s%20s%20s\n", "Book", stream, "price", "quantity", "cumulative")
	for _, l := range orderbook.Top(snap.Asks, t.depth) {
		fmt.Fprintf(t.out, "%-15s%-15s%20s%20s%20s\n", "", "ask", l.PriceText, l.QuantityText, l.Cumulative.String())
	}
	for _, l := range orderbook.Top(snap.Bids, t.depth) {
		fmt.Fprintf(t.out, "%-15s%-15s%20s%20s%20s\n", "", "bid", l.PriceText, l.QuantityText, l.Cumulative.String())
	}
	fmt.Fprintln(t.out)
}
