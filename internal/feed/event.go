package feed

import (
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
)

// Event is one outbound message of the engine.
type Event interface {
	StreamName() string
}

// TradeBatchEvent carries the trades of one flush, in arrival order.
type TradeBatchEvent struct {
	Stream string
	Data   []market.TradeEvent
}

// OrderBookEvent carries the snapshot produced by one applied diff.
type OrderBookEvent struct {
	Stream       string
	LastUpdateID int64
	Data         orderbook.Snapshot
}

// ErrorKind classifies an ErrorEvent.
type ErrorKind string

const (
	// ErrTransport is a connection level failure or an abnormal close.
	ErrTransport ErrorKind = "transport"
	// ErrProtocol is an unparseable inbound message, which is dropped.
	ErrProtocol ErrorKind = "protocol"
	// ErrTimeout is raised by consumers when no first data arrived in time.
	ErrTimeout ErrorKind = "timeout"
	// ErrInvariant is a message which would corrupt local state, which is dropped.
	ErrInvariant ErrorKind = "invariant"
)

// ErrorEvent reports a recovered failure of one stream.
type ErrorEvent struct {
	Stream string
	Kind   ErrorKind
	Err    string
}

// StreamName implements Event.
func (e TradeBatchEvent) StreamName() string { return e.Stream }

// StreamName implements Event.
func (e OrderBookEvent) StreamName() string { return e.Stream }

// StreamName implements Event.
func (e ErrorEvent) StreamName() string { return e.Stream }
