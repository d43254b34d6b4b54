package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/milkywaybrain/cryptofeed/internal/connector"
	"github.com/milkywaybrain/cryptofeed/internal/market"
	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// errNormalClosure ends a subscription whose server closed with code 1000.
var errNormalClosure = errors.New("connection closed normally")

// subscription is one live stream. Its processing goroutine is the only
// writer of the batch and the replica.
type subscription struct {
	id   string
	name string
	kind Kind
	url  string
	m    *Manager

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	batch        *batch
	replica      *orderbook.Replica
	lastUpdateID int64
	dropped      int
}

func newSubscription(parent context.Context, m *Manager, name string, kind Kind, url string) *subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &subscription{
		id:     uuid.NewString(),
		name:   name,
		kind:   kind,
		url:    url,
		m:      m,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	switch kind {
	case KindTrade:
		s.batch = newBatch(64)
	case KindOrderBook:
		s.replica = orderbook.New(m.order)
	}
	return s
}

// stop cancels the subscription and waits for its goroutines to end.
func (s *subscription) stop() {
	s.cancel()
	<-s.done
}

func (s *subscription) run() {
	defer close(s.done)
	defer s.cancel()

	ws, err := connector.NewWebsocket(s.ctx, s.m.wsCfg, s.url)
	if err != nil {
		if s.ctx.Err() == nil {
			logErrStack(err)
			s.report(ErrTransport, "failed to create websocket: "+err.Error())
		}
		return
	}
	log.Info().Str("stream", s.name).Str("sub", s.id).Msg("websocket connected")

	g, ctx := errgroup.WithContext(s.ctx)
	frames := make(chan []byte, 64)

	g.Go(func() error {
		return closeWsConnOnError(ctx, &ws)
	})
	g.Go(func() error {
		return s.readWs(ctx, &ws, frames)
	})
	g.Go(func() error {
		return s.process(ctx, frames)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errNormalClosure):
		log.Info().Str("stream", s.name).Str("sub", s.id).Msg("websocket closed by server")
	case s.ctx.Err() != nil:
		log.Debug().Str("stream", s.name).Str("sub", s.id).Msg("subscription stopped")
	default:
		log.Error().Err(err).Str("stream", s.name).Str("sub", s.id).Msg("subscription ended")
	}
	if s.batch != nil && s.batch.len() > 0 {
		log.Debug().Str("stream", s.name).Int("count", s.batch.len()).Msg("unflushed trades discarded")
	}
}

// closeWsConnOnError closes websocket connection if there is any error in subscription context.
// This will unblock all read and writes on websocket.
func closeWsConnOnError(ctx context.Context, ws *connector.Websocket) error {
	<-ctx.Done()
	err := ws.Close()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// readWs forwards data frames to the processing goroutine.
func (s *subscription) readWs(ctx context.Context, ws *connector.Websocket, frames chan<- []byte) error {
	for {
		frame, err := ws.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if code, reason, ok := connector.CloseStatus(err); ok {
				if connector.IsNormalClosure(err) {
					return errNormalClosure
				}
				msg := reason
				if msg == "" {
					msg = fmt.Sprint(int(code))
				}
				s.report(ErrTransport, "connection closed: "+msg)
				return errors.Errorf("websocket closed with code %d", code)
			}
			if err == io.EOF {
				err = errors.Wrap(err, "connection close by exchange server")
			}
			s.report(ErrTransport, "websocket connection error: "+err.Error())
			return err
		}
		if len(frame) == 0 {
			continue
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process applies frames and flushes the trade batch. Only this goroutine
// touches the batch and the replica.
func (s *subscription) process(ctx context.Context, frames <-chan []byte) error {
	var flush <-chan time.Time
	if s.kind == KindTrade {
		tick := time.NewTicker(s.m.engCfg.FlushPeriod())
		defer tick.Stop()
		flush = tick.C
	}

	for {
		select {
		case frame := <-frames:
			if err := s.handleFrame(ctx, frame); err != nil {
				return err
			}
		case <-flush:
			trades, ok := s.batch.flush()
			if !ok {
				continue
			}
			select {
			case s.m.events <- TradeBatchEvent{Stream: s.name, Data: trades}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *subscription) handleFrame(ctx context.Context, frame []byte) error {
	switch s.kind {
	case KindTrade:
		trade, err := market.DecodeTrade(frame)
		if err != nil {
			log.Debug().Err(err).Str("stream", s.name).Str("func", "handleFrame").Msg("trade dropped")
			s.report(ErrProtocol, "failed to parse message: "+err.Error())
			return nil
		}
		s.batch.add(trade)

	case KindOrderBook:
		diff, err := market.DecodeDiff(frame)
		if err != nil {
			log.Debug().Err(err).Str("stream", s.name).Str("func", "handleFrame").Msg("diff dropped")
			s.report(ErrProtocol, "failed to parse message: "+err.Error())
			return nil
		}
		if s.lastUpdateID != 0 && diff.FirstUpdateID != s.lastUpdateID+1 {
			// Observed only, the diff is applied anyway.
			log.Debug().Str("stream", s.name).Int64("first", diff.FirstUpdateID).Int64("last", s.lastUpdateID).Msg("update id gap")
		}
		snap, err := s.replica.ApplyDiff(diff)
		if err != nil {
			logErrStack(err)
			s.report(ErrInvariant, "diff dropped: "+err.Error())
			return nil
		}
		s.lastUpdateID = diff.LastUpdateID

		// A snapshot supersedes the previous one, so a full buffer drops it
		// rather than stalling diff application.
		select {
		case s.m.events <- OrderBookEvent{Stream: s.name, LastUpdateID: diff.LastUpdateID, Data: snap}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.dropped++
			log.Debug().Str("stream", s.name).Int("count", s.dropped).Msg("snapshot dropped, consumer is slow")
		}
	}
	return nil
}

// report sends an ErrorEvent unless the subscription is being torn down.
func (s *subscription) report(kind ErrorKind, msg string) {
	select {
	case s.m.events <- ErrorEvent{Stream: s.name, Kind: kind, Err: msg}:
	case <-s.ctx.Done():
	}
}

// logErrStack logs error with stack trace.
func logErrStack(err error) {
	log.Error().Stack().Err(errors.WithStack(err)).Msg("")
}
