// Package server exposes the board to display clients over HTTP and a
// websocket push feed.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/board"
	"github.com/milkywaybrain/cryptofeed/internal/candle"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/feed"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

// StreamLister reports the live subscriptions.
type StreamLister interface {
	Streams() []feed.StreamInfo
}

// Server serves the board.
type Server struct {
	mux   *http.ServeMux
	board *board.Board
	feeds StreamLister
	cfg   *config.Server
}

// New creates the server and registers its routes.
func New(cfg *config.Server, b *board.Board, feeds StreamLister) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		board: b,
		feeds: feeds,
		cfg:   cfg,
	}
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/view", s.handleView)
	s.mux.HandleFunc("/stream", s.handleStream)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "server listen")
	}
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("display server started")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streams":       s.board.Streams(),
		"subscriptions": s.feeds.Streams(),
		"time":          time.Now().UTC(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("timeframe")
	if name == "" {
		writeJSON(w, http.StatusOK, s.board.View())
		return
	}
	tf, err := candle.ParseTimeframe(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.board.ViewAt(tf))
}

// clientMsg is the only message a stream client sends.
type clientMsg struct {
	Timeframe string `json:"timeframe"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("stream accept")
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	interval := time.Duration(s.cfg.PushIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(config.DefaultPushIntervalMs) * time.Millisecond
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return s.readClient(ctx, c)
	})
	g.Go(func() error {
		return s.pushViews(ctx, c, interval)
	})
	err = g.Wait()
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
		c.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Debug().Err(err).Msg("stream client gone")
}

// readClient applies timeframe switches. A bad request is answered with an
// error message and the connection stays open.
func (s *Server) readClient(ctx context.Context, c *websocket.Conn) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}
		var msg clientMsg
		if err = jsoniter.Unmarshal(data, &msg); err != nil {
			if err = writeWs(ctx, c, map[string]string{"error": "invalid message"}); err != nil {
				return err
			}
			continue
		}
		if err = s.board.SetTimeframe(msg.Timeframe); err != nil {
			if err = writeWs(ctx, c, map[string]string{"error": err.Error()}); err != nil {
				return err
			}
			continue
		}
		log.Info().Str("timeframe", msg.Timeframe).Msg("timeframe switched")
		if err = writeWs(ctx, c, s.board.View()); err != nil {
			return err
		}
	}
}

func (s *Server) pushViews(ctx context.Context, c *websocket.Conn, interval time.Duration) error {
	if err := writeWs(ctx, c, s.board.View()); err != nil {
		return err
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if err := writeWs(ctx, c, s.board.View()); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeWs(ctx context.Context, c *websocket.Conn, v interface{}) error {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, data)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Msg("")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
