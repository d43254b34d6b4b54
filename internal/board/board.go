// Package board is the consumer side of the engine. It folds the outbound
// feed events into the state a display needs: recent trades, the latest
// order book of each stream, candles of the selected timeframe and the
// health of every stream.
package board

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/milkywaybrain/cryptofeed/internal/candle"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/feed"
	"github.com/milkywaybrain/cryptofeed/internal/history"
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
	"github.com/rs/zerolog/log"
)

// Status is the data availability of a stream.
type Status string

const (
	// StatusLoading is a watched stream which has not delivered data yet.
	StatusLoading Status = "loading"
	// StatusReady is a stream which delivered at least one event.
	StatusReady Status = "ready"
	// StatusNoData is a stream which stayed silent past the first data timeout.
	StatusNoData Status = "no_data"
)

// StreamState is the health of one stream as seen by the board.
type StreamState struct {
	Name          string         `json:"name"`
	Status        Status         `json:"status"`
	Events        int            `json:"events"`
	LastEventAt   time.Time      `json:"lastEventAt"`
	LastError     string         `json:"lastError,omitempty"`
	LastErrorKind feed.ErrorKind `json:"lastErrorKind,omitempty"`

	gen int
}

// CandleEvent carries candles whose bucket closed since the previous one.
// It is produced by the board and handed to sinks only.
type CandleEvent struct {
	Timeframe candle.Timeframe
	Candles   []candle.Candle
}

// StreamName implements feed.Event.
func (CandleEvent) StreamName() string { return "candles" }

// Sink receives every event the board applied. Accept must not block.
type Sink interface {
	Accept(ev feed.Event) bool
}

// Board is safe for concurrent use. Run is its only writer of market data,
// SetTimeframe and Watch may be called from any goroutine.
type Board struct {
	mu      sync.RWMutex
	history *history.History
	books   map[string]orderbook.Snapshot
	streams map[string]*StreamState
	tf      candle.Timeframe
	candles []candle.Candle
	// start of the newest candle handed to sinks as closed, per timeframe.
	lastClosed map[candle.Timeframe]int64
	// trades ever appended, history evicted once this exceeds its capacity.
	appended int

	timeout time.Duration
	sinks   []Sink
}

// New creates a board with the configured history capacity, first data
// timeout and initial timeframe.
func New(cfg *config.Engine, sinks ...Sink) (*Board, error) {
	tf, err := candle.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	timeout := cfg.FirstDataTimeout()
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultFirstDataTimeoutMs) * time.Millisecond
	}
	return &Board{
		history: history.New(cfg.HistoryCapacity),
		books:   make(map[string]orderbook.Snapshot),
		streams: make(map[string]*StreamState),
		tf:      tf,
		candles: []candle.Candle{},
		timeout: timeout,
		sinks:   sinks,

		lastClosed: make(map[candle.Timeframe]int64),
	}, nil
}

// Watch marks stream as loading and starts its first data timer. A stream
// still loading when the timer fires switches to no data. A stream which
// already delivered data is left as is.
func (b *Board) Watch(stream string) {
	b.mu.Lock()
	st := b.state(stream)
	if st.Status == StatusReady {
		b.mu.Unlock()
		return
	}
	st.Status = StatusLoading
	st.gen++
	gen := st.gen
	b.mu.Unlock()

	time.AfterFunc(b.timeout, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if st.gen != gen || st.Status != StatusLoading {
			return
		}
		st.Status = StatusNoData
		st.LastErrorKind = feed.ErrTimeout
		st.LastError = "no data received within " + b.timeout.String()
		log.Info().Str("stream", stream).Msg("no data received in time")
	})
}

// Run applies events until the channel is closed or ctx is done.
func (b *Board) Run(ctx context.Context, events <-chan feed.Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Apply(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Apply folds one event into the board and fans it out to the sinks.
func (b *Board) Apply(ev feed.Event) {
	var closed *CandleEvent

	b.mu.Lock()
	switch ev := ev.(type) {
	case feed.TradeBatchEvent:
		b.markReady(ev.Stream)
		trades := b.history.Append(ev.Data)
		b.appended += len(ev.Data)
		b.candles = candle.Aggregate(trades, b.tf)
		closed = b.closedCandles()
	case feed.OrderBookEvent:
		b.markReady(ev.Stream)
		b.books[ev.Stream] = ev.Data
	case feed.ErrorEvent:
		// Data already shown stays, only the error is recorded.
		st := b.state(ev.Stream)
		st.LastError = ev.Err
		st.LastErrorKind = ev.Kind
		log.Debug().Str("stream", ev.Stream).Str("kind", string(ev.Kind)).Msg(ev.Err)
	}
	b.mu.Unlock()

	for _, s := range b.sinks {
		s.Accept(ev)
		if closed != nil {
			s.Accept(*closed)
		}
	}
}

// closedCandles collects every candle but the newest which was not handed
// out yet for the selected timeframe. Once the history evicted trades the
// oldest candle may be missing some of them and is never handed out.
// Callers hold the lock.
func (b *Board) closedCandles() *CandleEvent {
	if len(b.candles) < 2 {
		return nil
	}
	last, emitted := b.lastClosed[b.tf]
	evicted := b.appended > b.history.Cap()
	var out []candle.Candle
	for i, c := range b.candles[:len(b.candles)-1] {
		if emitted && c.IntervalStart <= last {
			continue
		}
		if i == 0 && evicted {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	b.lastClosed[b.tf] = out[len(out)-1].IntervalStart
	return &CandleEvent{Timeframe: b.tf, Candles: out}
}

func (b *Board) markReady(stream string) {
	st := b.state(stream)
	st.Status = StatusReady
	st.Events++
	st.LastEventAt = time.Now().UTC()
}

func (b *Board) state(stream string) *StreamState {
	st, ok := b.streams[stream]
	if !ok {
		st = &StreamState{Name: stream, Status: StatusLoading}
		b.streams[stream] = st
	}
	return st
}

// SetTimeframe switches the candle timeframe and re-aggregates the history.
func (b *Board) SetTimeframe(name string) error {
	tf, err := candle.ParseTimeframe(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tf == b.tf {
		return nil
	}
	b.tf = tf
	b.candles = candle.Aggregate(b.history.Trades(), tf)
	return nil
}

// Timeframe returns the selected timeframe.
func (b *Board) Timeframe() candle.Timeframe {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tf
}

// Streams returns the state of every known stream sorted by name.
func (b *Board) Streams() []StreamState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streamsLocked()
}

func (b *Board) streamsLocked() []StreamState {
	out := make([]StreamState, 0, len(b.streams))
	for _, st := range b.streams {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// View is an immutable projection of the board.
type View struct {
	Price      string                        `json:"price"`
	Side       string                        `json:"side,omitempty"`
	Trades     []market.TradeEvent           `json:"trades"`
	OrderBooks map[string]orderbook.Snapshot `json:"orderBooks"`
	Timeframe  string                        `json:"timeframe"`
	Candles    []candle.Candle               `json:"candles"`
	Summary    candle.Summary                `json:"summary"`
	Streams    []StreamState                 `json:"streams"`
}

// View returns the board state for the selected timeframe.
func (b *Board) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	candles := make([]candle.Candle, len(b.candles))
	copy(candles, b.candles)
	return b.viewLocked(b.tf, candles)
}

// ViewAt returns the board state with candles of tf, leaving the selected
// timeframe untouched.
func (b *Board) ViewAt(tf candle.Timeframe) View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewLocked(tf, candle.Aggregate(b.history.Trades(), tf))
}

func (b *Board) viewLocked(tf candle.Timeframe, candles []candle.Candle) View {
	v := View{
		Trades:     b.history.Trades(),
		OrderBooks: make(map[string]orderbook.Snapshot, len(b.books)),
		Timeframe:  tf.String(),
		Candles:    candles,
		Summary:    candle.Summarize(candles),
		Streams:    b.streamsLocked(),
	}
	if last, ok := b.history.Last(); ok {
		v.Price = last.PriceText
		v.Side = last.Side()
	}
	for name, snap := range b.books {
		v.OrderBooks[name] = snap
	}
	return v
}
