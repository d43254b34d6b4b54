package config

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	// BinanceWebsocketURL is the binance exchange websocket url.
	BinanceWebsocketURL = "wss://stream.binance.com:9443/ws"
	// BinanceRESTBaseURL is the binance exchange base REST url.
	BinanceRESTBaseURL = "https://api.binance.com/api/v3/"

	// StreamTrade is the default name of the trade carrying stream.
	StreamTrade = "trade"
	// StreamOrderBook is the default name of the order book diff stream.
	StreamOrderBook = "orderBook"

	// KindTrade marks a stream which carries trade prints.
	KindTrade = "trade"
	// KindOrderBook marks a stream which carries order book diffs.
	KindOrderBook = "order_book"
)

// Config contains config values for the app.
// Struct values are loaded from user defined JSON config file.
type Config struct {
	Streams    []Stream   `json:"streams"`
	Engine     Engine     `json:"engine"`
	Connection Connection `json:"connection"`
	Server     Server     `json:"server"`
	Log        Log        `json:"log"`
}

// Stream contains config values for one market data subscription.
type Stream struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	URL      string   `json:"url"`
	Storages []string `json:"storages"`
}

// Engine contains the tunables of the ingestion engine.
type Engine struct {
	FlushPeriodMs      int    `json:"flush_period_ms"`
	HistoryCapacity    int    `json:"history_capacity"`
	FirstDataTimeoutMs int    `json:"first_data_timeout_ms"`
	EventBuffer        int    `json:"event_buffer"`
	Timeframe          string `json:"timeframe"`
	BidsDescending     bool   `json:"bids_descending"`
}

// FlushPeriod returns the trade batch flush period.
func (e *Engine) FlushPeriod() time.Duration {
	return time.Duration(e.FlushPeriodMs) * time.Millisecond
}

// FirstDataTimeout returns how long a consumer waits for the first event of a stream.
func (e *Engine) FirstDataTimeout() time.Duration {
	return time.Duration(e.FirstDataTimeoutMs) * time.Millisecond
}

// Connection contains config values for different API and storage connections.
type Connection struct {
	WS       WS       `json:"websocket"`
	Terminal Terminal `json:"terminal"`
	MySQL    MySQL    `json:"mysql"`
	ES       ES       `json:"elastic_search"`
	Redis    Redis    `json:"redis"`
}

// WS contains config values for websocket connection.
type WS struct {
	ConnTimeoutSec int `json:"conn_timeout_sec"`
	ReadTimeoutSec int `json:"read_timeout_sec"`
}

// Terminal contains config values for terminal display.
type Terminal struct {
	BookDepth int `json:"book_depth"`
}

// MySQL contains config values for mysql.
type MySQL struct {
	User               string `json:"user"`
	Password           string `json:"password"`
	URL                string `json:"URL"`
	Schema             string `json:"schema"`
	ReqTimeoutSec      int    `json:"request_timeout_sec"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	MaxOpenConns       int    `json:"max_open_conns"`
	MaxIdleConns       int    `json:"max_idle_conns"`
}

// ES contains config values for elastic search.
type ES struct {
	Addresses           []string `json:"addresses"`
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	IndexName           string   `json:"index_name"`
	ReqTimeoutSec       int      `json:"request_timeout_sec"`
	MaxIdleConns        int      `json:"max_idle_conns"`
	MaxIdleConnsPerHost int      `json:"max_idle_conns_per_host"`
}

// Redis contains config values for the order book snapshot cache.
type Redis struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	TTLSec        int    `json:"ttl_sec"`
	ReqTimeoutSec int    `json:"request_timeout_sec"`
}

// Server contains config values for the display feed server.
type Server struct {
	Addr           string `json:"addr"`
	PushIntervalMs int    `json:"push_interval_ms"`
}

// Log contains config values for logging.
type Log struct {
	Level    string `json:"level"`
	FilePath string `json:"file_path"`
}

// Load reads the JSON config file at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	var cfg Config
	if err = jsoniter.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	cfg.ApplyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
