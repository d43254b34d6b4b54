package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/pkg/errors"
)

// ElasticSearch is for connecting and indexing data to elastic search.
type ElasticSearch struct {
	ES        *elasticsearch.Client
	IndexName string
	Cfg       *config.ES
}

// NewElasticSearch initializes elastic search connection with configured values.
func NewElasticSearch(cfg *config.ES) (*ElasticSearch, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = cfg.MaxIdleConns
	t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: t,
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := reqContext(context.Background(), cfg.ReqTimeoutSec)
	defer cancel()
	resp, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return &ElasticSearch{ES: es, IndexName: cfg.IndexName, Cfg: cfg}, nil
}

// esData holds trade data which will be sent to elastic search.
type esData struct {
	Channel   string    `json:"channel"`
	Stream    string    `json:"stream"`
	TradeID   uint64    `json:"trade_id"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// bulkBody builds the newline delimited bulk create body.
func bulkBody(data []Trade, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	meta := []byte(`{"create":{}}` + "\n")
	for _, trade := range data {
		ed := esData{
			Channel:   "trade",
			Stream:    trade.Stream,
			TradeID:   trade.TradeID,
			Side:      trade.Side,
			Size:      trade.Size.InexactFloat64(),
			Price:     trade.Price.InexactFloat64(),
			Timestamp: trade.Timestamp,
			CreatedAt: now,
		}
		esBytes, err := jsoniter.Marshal(ed)
		if err != nil {
			return nil, err
		}
		esBytes = append(esBytes, "\n"...)
		buf.Grow(len(meta) + len(esBytes))
		buf.Write(meta)
		buf.Write(esBytes)
	}
	return buf.Bytes(), nil
}

// CommitTrades batch inserts input trade data to elastic search.
func (e *ElasticSearch) CommitTrades(appCtx context.Context, data []Trade) error {
	if len(data) == 0 {
		return nil
	}
	body, err := bulkBody(data, time.Now().UTC())
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(appCtx, e.Cfg.ReqTimeoutSec)
	defer cancel()
	resp, err := e.ES.Bulk(bytes.NewReader(body), e.ES.Bulk.WithIndex(e.IndexName), e.ES.Bulk.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("code : %v, status : %v", resp.StatusCode, resp.Status())
	}
	_, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return err
	}
	return nil
}
