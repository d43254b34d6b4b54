package storage

import (
	"context"

	"github.com/milkywaybrain/cryptofeed/internal/board"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/feed"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Storage names accepted in a stream config.
const (
	TerminalName      = "terminal"
	MySQLName         = "mysql"
	ElasticSearchName = "elastic_search"
	RedisName         = "redis"
)

// Sinks holds the storage systems which were initialized for the app.
// A nil field means the storage is not used by any stream.
type Sinks struct {
	Terminal      *Terminal
	MySQL         *MySQL
	ElasticSearch *ElasticSearch
	Redis         *Redis
}

// Dispatcher routes engine events to the storages configured per stream.
// Every storage has its own commit goroutine fed through a buffered channel,
// so a slow storage only loses its own data and never stalls the board.
type Dispatcher struct {
	sinks  Sinks
	routes map[string]map[string]bool
	// candles of the board timeframe go to mysql when any stream commits there.
	candles bool

	terCh   chan feed.Event
	mysqlCh chan feed.Event
	esCh    chan feed.Event
	redisCh chan feed.Event
}

// NewDispatcher creates the dispatcher. buf is the per storage channel size.
func NewDispatcher(streams []config.Stream, sinks Sinks, buf int) *Dispatcher {
	if buf < 1 {
		buf = 1
	}
	d := &Dispatcher{
		sinks:  sinks,
		routes: make(map[string]map[string]bool, len(streams)),
	}
	for _, s := range streams {
		r := make(map[string]bool, len(s.Storages))
		for _, str := range s.Storages {
			r[str] = true
			if str == MySQLName && s.Kind == config.KindTrade {
				d.candles = true
			}
		}
		d.routes[s.Name] = r
	}
	if sinks.Terminal != nil {
		d.terCh = make(chan feed.Event, buf)
	}
	if sinks.MySQL != nil {
		d.mysqlCh = make(chan feed.Event, buf)
	}
	if sinks.ElasticSearch != nil {
		d.esCh = make(chan feed.Event, buf)
	}
	if sinks.Redis != nil {
		d.redisCh = make(chan feed.Event, buf)
	}
	return d
}

// Accept queues ev for every storage routed for its stream.
// It never blocks, false means at least one storage dropped the event.
func (d *Dispatcher) Accept(ev feed.Event) bool {
	ok := true
	switch ev := ev.(type) {
	case feed.TradeBatchEvent:
		r := d.routes[ev.Stream]
		ok = d.offer(d.terCh, r[TerminalName], ev, TerminalName) && ok
		ok = d.offer(d.mysqlCh, r[MySQLName], ev, MySQLName) && ok
		ok = d.offer(d.esCh, r[ElasticSearchName], ev, ElasticSearchName) && ok
	case feed.OrderBookEvent:
		r := d.routes[ev.Stream]
		ok = d.offer(d.terCh, r[TerminalName], ev, TerminalName) && ok
		ok = d.offer(d.redisCh, r[RedisName], ev, RedisName) && ok
	case board.CandleEvent:
		ok = d.offer(d.mysqlCh, d.candles, ev, MySQLName)
	}
	return ok
}

func (d *Dispatcher) offer(ch chan feed.Event, routed bool, ev feed.Event, name string) bool {
	if ch == nil || !routed {
		return true
	}
	select {
	case ch <- ev:
		return true
	default:
		log.Debug().Str("storage", name).Str("stream", ev.StreamName()).Msg("storage is slow, event dropped")
		return false
	}
}

// Run commits queued events until ctx is done. Commit failures are logged,
// the storage keeps going with the next event.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if d.terCh != nil {
		g.Go(func() error { return d.drain(ctx, d.terCh, d.toTerminal) })
	}
	if d.mysqlCh != nil {
		g.Go(func() error { return d.drain(ctx, d.mysqlCh, d.toMySQL) })
	}
	if d.esCh != nil {
		g.Go(func() error { return d.drain(ctx, d.esCh, d.toElasticSearch) })
	}
	if d.redisCh != nil {
		g.Go(func() error { return d.drain(ctx, d.redisCh, d.toRedis) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dispatcher) drain(ctx context.Context, ch <-chan feed.Event, commit func(context.Context, feed.Event) error) error {
	for {
		select {
		case ev := <-ch:
			if err := commit(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Stack().Err(errors.WithStack(err)).Str("stream", ev.StreamName()).Msg("")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) toTerminal(_ context.Context, ev feed.Event) error {
	switch ev := ev.(type) {
	case feed.TradeBatchEvent:
		d.sinks.Terminal.CommitTrades(TradesFromEvents(ev.Stream, ev.Data))
	case feed.OrderBookEvent:
		d.sinks.Terminal.CommitBook(ev.Stream, ev.Data)
	}
	return nil
}

func (d *Dispatcher) toMySQL(ctx context.Context, ev feed.Event) error {
	switch ev := ev.(type) {
	case feed.TradeBatchEvent:
		return d.sinks.MySQL.CommitTrades(ctx, TradesFromEvents(ev.Stream, ev.Data))
	case board.CandleEvent:
		return d.sinks.MySQL.CommitCandles(ctx, CandlesFromAggregate(ev.Timeframe, ev.Candles))
	}
	return nil
}

func (d *Dispatcher) toElasticSearch(ctx context.Context, ev feed.Event) error {
	if ev, ok := ev.(feed.TradeBatchEvent); ok {
		return d.sinks.ElasticSearch.CommitTrades(ctx, TradesFromEvents(ev.Stream, ev.Data))
	}
	return nil
}

func (d *Dispatcher) toRedis(ctx context.Context, ev feed.Event) error {
	if ev, ok := ev.(feed.OrderBookEvent); ok {
		return d.sinks.Redis.CommitBook(ctx, ev.Stream, ev.Data)
	}
	return nil
}

// Close releases the storage connections.
func (s Sinks) Close() {
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Error().Err(err).Msg("mysql close")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}
}
