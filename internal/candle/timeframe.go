package candle

import (
	"time"

	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/pkg/errors"
)

// ErrUnknownTimeframe is returned by ParseTimeframe for an unsupported name.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe is one of the supported candle durations.
type Timeframe int

const (
	OneSecond Timeframe = iota
	FifteenMinutes
	OneHour
	FourHours
	OneDay
	OneWeek
)

// All lists every timeframe in display order.
var All = []Timeframe{OneSecond, FifteenMinutes, OneHour, FourHours, OneDay, OneWeek}

// ParseTimeframe converts a display name ("1s", "15m", "1H", "4H", "1D", "1W").
func ParseTimeframe(name string) (Timeframe, error) {
	for i, tf := range config.Timeframes {
		if tf.Name == name {
			return Timeframe(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownTimeframe, "%q", name)
}

func (tf Timeframe) valid() bool {
	return tf >= 0 && int(tf) < len(config.Timeframes)
}

// String returns the display name.
func (tf Timeframe) String() string {
	if !tf.valid() {
		return "unknown"
	}
	return config.Timeframes[tf].Name
}

// Duration returns the bucket length.
func (tf Timeframe) Duration() time.Duration {
	if !tf.valid() {
		return 0
	}
	return config.Timeframes[tf].Duration
}

// Millis returns the bucket length in milliseconds, the unit of trade times.
func (tf Timeframe) Millis() int64 {
	return tf.Duration().Milliseconds()
}
