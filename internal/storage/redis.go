package storage

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/orderbook"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis keeps the latest order book snapshot of each stream under a
// short TTL, so a stalled stream expires instead of serving stale depth.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	Cfg    *config.Redis
}

// NewRedis initializes redis connection with configured values.
func NewRedis(cfg *config.Redis) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := reqContext(context.Background(), cfg.ReqTimeoutSec)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &Redis{
		client: rdb,
		ttl:    time.Duration(cfg.TTLSec) * time.Second,
		Cfg:    cfg,
	}, nil
}

func bookKey(stream string) string { return "ob:" + stream }

// CommitBook stores the snapshot as JSON under ob:<stream>.
func (r *Redis) CommitBook(appCtx context.Context, stream string, snap orderbook.Snapshot) error {
	b, err := jsoniter.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal order book")
	}
	ctx, cancel := reqContext(appCtx, r.Cfg.ReqTimeoutSec)
	defer cancel()
	return errors.Wrap(r.client.Set(ctx, bookKey(stream), b, r.ttl).Err(), "redis set")
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
