package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Default values for optional configuration fields.
const (
	DefaultFlushPeriodMs      = 100
	DefaultHistoryCapacity    = 1000
	DefaultFirstDataTimeoutMs = 3000
	DefaultEventBuffer        = 256
	DefaultTimeframe          = "1s"
	DefaultBookDepth          = 10
	DefaultRedisTTLSec        = 60
	DefaultServerAddr         = "127.0.0.1:8080"
	DefaultPushIntervalMs     = 250
	DefaultSymbol             = "btcusdt"
)

// Timeframes lists the supported candle timeframes and their durations,
// in display order.
var Timeframes = []struct {
	Name     string
	Duration time.Duration
}{
	{"1s", time.Second},
	{"15m", 15 * time.Minute},
	{"1H", time.Hour},
	{"4H", 4 * time.Hour},
	{"1D", 24 * time.Hour},
	{"1W", 7 * 24 * time.Hour},
}

// DefaultStreams returns the trade and diff subscriptions used when the
// config file does not name any.
func DefaultStreams() []Stream {
	return []Stream{
		{Name: StreamTrade, Kind: KindTrade, URL: BinanceWebsocketURL + "/" + DefaultSymbol + "@trade"},
		{Name: StreamOrderBook, Kind: KindOrderBook, URL: BinanceWebsocketURL + "/" + DefaultSymbol + "@depth@100ms"},
	}
}

// ApplyDefaults fills zero valued optional fields.
func (c *Config) ApplyDefaults() {
	if len(c.Streams) == 0 {
		c.Streams = DefaultStreams()
	}
	for i := range c.Streams {
		if c.Streams[i].Kind != "" {
			continue
		}
		switch {
		case strings.Contains(c.Streams[i].URL, "@depth"):
			c.Streams[i].Kind = KindOrderBook
		default:
			c.Streams[i].Kind = KindTrade
		}
	}

	if c.Engine.FlushPeriodMs == 0 {
		c.Engine.FlushPeriodMs = DefaultFlushPeriodMs
	}
	if c.Engine.HistoryCapacity == 0 {
		c.Engine.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.Engine.FirstDataTimeoutMs == 0 {
		c.Engine.FirstDataTimeoutMs = DefaultFirstDataTimeoutMs
	}
	if c.Engine.EventBuffer == 0 {
		c.Engine.EventBuffer = DefaultEventBuffer
	}
	if c.Engine.Timeframe == "" {
		c.Engine.Timeframe = DefaultTimeframe
	}

	if c.Connection.Terminal.BookDepth == 0 {
		c.Connection.Terminal.BookDepth = DefaultBookDepth
	}
	if c.Connection.Redis.TTLSec == 0 {
		c.Connection.Redis.TTLSec = DefaultRedisTTLSec
	}

	if c.Server.PushIntervalMs == 0 {
		c.Server.PushIntervalMs = DefaultPushIntervalMs
	}
}

// Validate checks user defined values which can not be defaulted.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.Name == "" {
			return errors.New("stream name should not be empty")
		}
		if names[s.Name] {
			return errors.Errorf("stream %v is configured more than once", s.Name)
		}
		names[s.Name] = true
		if s.URL == "" {
			return errors.Errorf("stream %v has no url", s.Name)
		}
		if s.Kind != KindTrade && s.Kind != KindOrderBook {
			return errors.Errorf("stream %v has unknown kind %v", s.Name, s.Kind)
		}
		for _, str := range s.Storages {
			switch str {
			case "terminal", "mysql", "elastic_search", "redis":
			default:
				return errors.Errorf("stream %v has unknown storage %v", s.Name, str)
			}
		}
	}
	if c.Engine.FlushPeriodMs < 1 {
		return errors.New("flush_period_ms should be greater than zero")
	}
	if c.Engine.HistoryCapacity < 1 {
		return errors.New("history_capacity should be greater than zero")
	}
	if c.Engine.FirstDataTimeoutMs < 1 {
		return errors.New("first_data_timeout_ms should be greater than zero")
	}
	if _, ok := TimeframeDuration(c.Engine.Timeframe); !ok {
		return errors.Errorf("unknown timeframe %v", c.Engine.Timeframe)
	}
	return nil
}

// TimeframeDuration looks up the duration of a named timeframe.
func TimeframeDuration(name string) (time.Duration, bool) {
	for _, tf := range Timeframes {
		if tf.Name == name {
			return tf.Duration, true
		}
	}
	return 0, false
}
