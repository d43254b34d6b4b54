package initializer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// fakeExchange serves frames once per connection and then idles until the
// client goes away.
func fakeExchange(t *testing.T, frames ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionDisabled})
		if err != nil {
			return
		}
		ctx := c.CloseRead(context.Background())
		for _, f := range frames {
			if err := c.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestStart runs the whole app against fake exchange endpoints with the
// terminal storage writing to a file.
func TestStart(t *testing.T) {
	dir := t.TempDir()
	tradeURL := fakeExchange(t,
		`{"e":"trade","E":1,"s":"BTCUSDT","t":11,"p":"27000.10","q":"0.5","T":1000,"m":false,"M":true}`,
		`{"e":"trade","E":2,"s":"BTCUSDT","t":12,"p":"27000.20","q":"0.1","T":1200,"m":true,"M":true}`,
	)
	bookURL := fakeExchange(t,
		`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":2,"b":[["26999.00","1.25"]],"a":[["27001.00","3.5"]]}`,
	)

	cfg := &config.Config{
		Streams: []config.Stream{
			{Name: config.StreamTrade, URL: tradeURL + "/btcusdt@trade", Storages: []string{"terminal"}},
			{Name: config.StreamOrderBook, URL: bookURL + "/btcusdt@depth@100ms", Storages: []string{"terminal"}},
		},
		Connection: config.Connection{WS: config.WS{ConnTimeoutSec: 2}},
		Log:        config.Log{Level: "debug", FilePath: filepath.Join(dir, "app.log")},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, config.KindOrderBook, cfg.Streams[1].Kind)

	outPath := filepath.Join(dir, "ter_storage_test.txt")
	out, err := os.Create(outPath)
	require.NoError(t, err)
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- start(ctx, cfg, out) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(outPath)
		if err != nil {
			return false
		}
		text := string(data)
		return strings.Contains(text, "27000.1") && strings.Contains(text, "27000.2") && strings.Contains(text, "26999.00")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	logs, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logs), "logger setup is done")
	assert.Contains(t, string(logs), "stream subscribed")
}

func TestStartFailsOnUnreachableStorage(t *testing.T) {
	cfg := &config.Config{
		Streams: []config.Stream{
			{Name: config.StreamTrade, URL: "ws://127.0.0.1:1/ws", Storages: []string{"redis"}},
		},
		Connection: config.Connection{Redis: config.Redis{Addr: "127.0.0.1:1", ReqTimeoutSec: 1}},
		Log:        config.Log{FilePath: filepath.Join(t.TempDir(), "app.log")},
	}
	cfg.ApplyDefaults()
	err := start(context.Background(), cfg, os.Stdout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection")
}
