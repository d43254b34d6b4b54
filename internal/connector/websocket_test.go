package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestCloseStatus(t *testing.T) {
	code, reason, ok := CloseStatus(errors.Wrap(wsutil.ClosedError{Code: 4001, Reason: "maintenance"}, "read"))
	require.True(t, ok)
	assert.Equal(t, ws.StatusCode(4001), code)
	assert.Equal(t, "maintenance", reason)

	_, _, ok = CloseStatus(errors.New("boom"))
	assert.False(t, ok)

	assert.True(t, IsNormalClosure(wsutil.ClosedError{Code: ws.StatusNormalClosure}))
	assert.False(t, IsNormalClosure(wsutil.ClosedError{Code: ws.StatusGoingAway}))
}

func TestReadAndServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionDisabled})
		if err != nil {
			return
		}
		ctx := context.Background()
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"hello":1}`))
		c.Close(websocket.StatusCode(4002), "bye")
	}))
	defer srv.Close()

	cfg := &config.WS{ConnTimeoutSec: 2, ReadTimeoutSec: 2}
	conn, err := NewWebsocket(context.Background(), cfg, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	frame, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"hello":1}`, string(frame))

	_, err = conn.Read()
	code, reason, ok := CloseStatus(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, ws.StatusCode(4002), code)
	assert.Equal(t, "bye", reason)
}

func TestDialFailure(t *testing.T) {
	_, err := NewWebsocket(context.Background(), &config.WS{ConnTimeoutSec: 1}, "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}
