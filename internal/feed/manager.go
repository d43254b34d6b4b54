// Package feed owns the websocket subscriptions of the engine. It turns the
// inbound trade and depth streams into outbound events: flushed trade
// batches, order book snapshots and per stream error reports.
package feed

import (
	"context"
	"sort"
	"sync"

	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownStream is returned by Connect for a stream name without a kind.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("manager closed")
)

// Kind is the payload type a stream carries.
type Kind string

const (
	KindTrade     Kind = config.KindTrade
	KindOrderBook Kind = config.KindOrderBook
)

// StreamInfo describes a live subscription.
type StreamInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
}

// Manager keeps at most one live subscription per stream name.
type Manager struct {
	engCfg *config.Engine
	wsCfg  *config.WS
	kinds  map[string]Kind
	order  orderbook.Order
	events chan Event

	// connectMu serializes Connect / Disconnect so replacing a subscription
	// is never interleaved with another replacement of the same name.
	connectMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a manager. kinds maps every stream name the host may
// connect to the payload it carries; the default "trade" and "orderBook"
// names are always known. A zero flush period or event buffer falls back to
// the defaults.
func NewManager(engCfg *config.Engine, wsCfg *config.WS, kinds map[string]Kind) *Manager {
	k := map[string]Kind{
		config.StreamTrade:     KindTrade,
		config.StreamOrderBook: KindOrderBook,
	}
	for name, kind := range kinds {
		k[name] = kind
	}
	order := orderbook.Order{}
	if engCfg.BidsDescending {
		order = orderbook.BestFirst
	}
	eng := *engCfg
	if eng.FlushPeriodMs < 1 {
		eng.FlushPeriodMs = config.DefaultFlushPeriodMs
	}
	if eng.EventBuffer < 1 {
		eng.EventBuffer = config.DefaultEventBuffer
	}
	return &Manager{
		engCfg: &eng,
		wsCfg:  wsCfg,
		kinds:  k,
		order:  order,
		events: make(chan Event, eng.EventBuffer),
		subs:   make(map[string]*subscription),
	}
}

// Events returns the outbound event channel. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connect opens a subscription to endpoint under streamName. A live
// subscription with the same name is torn down first, including its flush
// timer and unflushed batch. Connection failures are reported as ErrorEvent,
// the returned error only covers an unknown stream name or a closed manager.
// The subscription lives until ctx is done, it is replaced, or the server
// closes it.
func (m *Manager) Connect(ctx context.Context, streamName string, endpoint string) error {
	kind, ok := m.kinds[streamName]
	if !ok {
		return errors.Wrapf(ErrUnknownStream, "%q", streamName)
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	prev := m.subs[streamName]
	delete(m.subs, streamName)
	m.mu.Unlock()

	if prev != nil {
		prev.stop()
		log.Info().Str("stream", streamName).Str("sub", prev.id).Msg("subscription replaced")
	}

	sub := newSubscription(ctx, m, streamName, kind, endpoint)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.cancel()
		return ErrClosed
	}
	m.subs[streamName] = sub
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		sub.run()
		m.release(sub)
	}()
	return nil
}

// Disconnect tears down the subscription of streamName, if any.
func (m *Manager) Disconnect(streamName string) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	sub := m.subs[streamName]
	delete(m.subs, streamName)
	m.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

// Streams lists the live subscriptions sorted by name.
func (m *Manager) Streams() []StreamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamInfo, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, StreamInfo{Name: s.name, ID: s.id, Kind: s.kind, URL: s.url})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close tears down every subscription and closes the event channel.
func (m *Manager) Close() {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	m.wg.Wait()
	close(m.events)
}

// release forgets sub once its goroutines ended on their own.
func (m *Manager) release(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[sub.name] == sub {
		delete(m.subs, sub.name)
	}
}
