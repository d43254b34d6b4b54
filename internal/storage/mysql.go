package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	// Registers the mysql driver with database/sql.
	_ "github.com/go-sql-driver/mysql"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/pkg/errors"
)

// MySQL is for connecting and inserting data to mysql.
type MySQL struct {
	DB  *sql.DB
	Cfg *config.MySQL
}

// Go time gives Z00:00, mysql timestamp needs +00:00 for UTC.
const mysqlTimestamp = "2006-01-02T15:04:05.999+00:00"

// DSN builds the mysql data source name from configured values.
func DSN(cfg *config.MySQL) string {
	return cfg.User + ":" + cfg.Password + cfg.URL + "/" + cfg.Schema
}

// NewMySQL initializes mysql connection with configured values.
func NewMySQL(cfg *config.MySQL) (*MySQL, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Second * time.Duration(cfg.ConnMaxLifetimeSec))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := reqContext(context.Background(), cfg.ReqTimeoutSec)
	defer cancel()
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQL{DB: db, Cfg: cfg}, nil
}

// CommitTrades batch inserts input trade data to database.
func (m *MySQL) CommitTrades(appCtx context.Context, data []Trade) error {
	if len(data) == 0 {
		return nil
	}
	query, args := tradesInsert(data, time.Now().UTC())
	ctx, cancel := reqContext(appCtx, m.Cfg.ReqTimeoutSec)
	defer cancel()
	_, err := m.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "mysql trade insert")
	}
	return nil
}

// CommitCandles batch upserts closed candles to database.
func (m *MySQL) CommitCandles(appCtx context.Context, data []Candle) error {
	if len(data) == 0 {
		return nil
	}
	query, args := candlesUpsert(data, time.Now().UTC())
	ctx, cancel := reqContext(appCtx, m.Cfg.ReqTimeoutSec)
	defer cancel()
	_, err := m.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "mysql candle insert")
	}
	return nil
}

// Close closes the connection pool.
func (m *MySQL) Close() error {
	return m.DB.Close()
}

func tradesInsert(data []Trade, now time.Time) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(data)*7)
	sb.WriteString("INSERT INTO trade(stream, trade_id, side, size, price, timestamp, created_at) VALUES ")
	for i, trade := range data {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, trade.Stream, trade.TradeID, trade.Side, trade.Size.String(), trade.Price.String(),
			trade.Timestamp.UTC().Format(mysqlTimestamp), now.Format(mysqlTimestamp))
	}
	return sb.String(), args
}

// candlesUpsert overwrites a candle already stored for the same bucket by an
// earlier run of the app.
func candlesUpsert(data []Candle, now time.Time) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(data)*9)
	sb.WriteString("INSERT INTO candle(timeframe, start, open, high, low, close, volume, trades, created_at) VALUES ")
	for i, c := range data {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, c.Timeframe, c.Start.Format(mysqlTimestamp), c.Open.String(), c.High.String(), c.Low.String(),
			c.Close.String(), c.Volume.String(), c.Trades, now.Format(mysqlTimestamp))
	}
	sb.WriteString(" ON DUPLICATE KEY UPDATE open = VALUES(open), high = VALUES(high), low = VALUES(low), close = VALUES(close), volume = VALUES(volume), trades = VALUES(trades)")
	return sb.String(), args
}

// reqContext applies the configured request timeout, if any.
func reqContext(parent context.Context, timeoutSec int) (context.Context, context.CancelFunc) {
	if timeoutSec > 0 {
		return context.WithTimeout(parent, time.Duration(timeoutSec)*time.Second)
	}
	return context.WithCancel(parent)
}
