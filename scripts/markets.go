package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/rs/zerolog/log"
)

// This function will query binance for the traded symbols and store them in a csv file together with
// the trade and depth stream urls of each one. Users can copy the urls into the streams of the app
// configuration. CSV file created at ./examples/markets.csv.
func main() {
	if err := os.MkdirAll("./examples", 0755); err != nil {
		log.Error().Err(err).Msg("examples directory create")
		return
	}
	f, err := os.Create("./examples/markets.csv")
	if err != nil {
		log.Error().Err(err).Msg("csv file create")
		return
	}
	w := csv.NewWriter(f)
	defer f.Close()
	defer w.Flush()

	resp, err := http.Get(config.BinanceRESTBaseURL + "exchangeInfo")
	if err != nil {
		log.Error().Err(err).Str("exchange", "binance").Msg("exchange request for markets")
		return
	}
	defer resp.Body.Close()
	binanceMarkets := binanceResp{}
	if err = jsoniter.NewDecoder(resp.Body).Decode(&binanceMarkets); err != nil {
		log.Error().Err(err).Str("exchange", "binance").Msg("convert markets response")
		return
	}

	if err = w.Write([]string{"symbol", "trade_url", "order_book_url"}); err != nil {
		log.Error().Err(err).Msg("writing markets to csv")
		return
	}
	count := 0
	for _, record := range binanceMarkets.Result {
		if record.Status != "TRADING" {
			continue
		}
		sym := strings.ToLower(record.Name)
		row := []string{
			record.Name,
			config.BinanceWebsocketURL + "/" + sym + "@trade",
			config.BinanceWebsocketURL + "/" + sym + "@depth@100ms",
		}
		if err = w.Write(row); err != nil {
			log.Error().Err(err).Str("exchange", "binance").Msg("writing markets to csv")
			return
		}
		count++
	}

	fmt.Printf("CSV file with %d markets generated successfully at ./examples/markets.csv\n", count)
}

type binanceResp struct {
	Result []binanceRespRes `json:"symbols"`
}
type binanceRespRes struct {
	Name   string `json:"symbol"`
	Status string `json:"status"`
}
