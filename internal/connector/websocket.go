package connector

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/pkg/errors"
)

// Websocket is for websocket connection.
type Websocket struct {
	Conn net.Conn
	Cfg  *config.WS
	rw   io.ReadWriter
}

// bufferedConn reads whatever the handshake left in the dial buffer before
// reading from the connection itself.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// NewWebsocket creates a new websocket connection to the given stream url.
func NewWebsocket(appCtx context.Context, cfg *config.WS, url string) (Websocket, error) {
	ctx := appCtx
	if cfg.ConnTimeoutSec > 0 {
		timeoutCtx, cancel := context.WithTimeout(appCtx, time.Duration(cfg.ConnTimeoutSec)*time.Second)
		ctx = timeoutCtx
		defer cancel()
	}
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return Websocket{}, err
	}
	websocket := Websocket{Conn: conn, Cfg: cfg, rw: conn}
	if br != nil {
		websocket.rw = bufferedConn{Conn: conn, r: io.MultiReader(br, conn)}
	}
	return websocket, nil
}

// Write writes data frame on websocket connection.
func (w *Websocket) Write(data []byte) error {
	return wsutil.WriteClientText(w.Conn, data)
}

// Read reads data frame from websocket connection.
// A close frame from the server is returned as wsutil.ClosedError, see CloseStatus.
func (w *Websocket) Read() ([]byte, error) {
	if w.Cfg.ReadTimeoutSec > 0 {
		err := w.Conn.SetReadDeadline(time.Now().Add(time.Duration(w.Cfg.ReadTimeoutSec) * time.Second))
		if err != nil {
			return nil, err
		}
	}
	return wsutil.ReadServerText(w.rw)
}

// Close closes the underlying connection, which unblocks a pending Read.
func (w *Websocket) Close() error {
	return w.Conn.Close()
}

// CloseStatus extracts the close code and reason sent by the server.
// ok is false when err is not a close frame.
func CloseStatus(err error) (code ws.StatusCode, reason string, ok bool) {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code, closed.Reason, true
	}
	return 0, "", false
}

// IsNormalClosure reports whether err is a close frame with the normal closure code.
func IsNormalClosure(err error) bool {
	code, _, ok := CloseStatus(err)
	return ok && code == ws.StatusNormalClosure
}
