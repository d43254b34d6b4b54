package market

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed message")

type wsTradeBinance struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   uint64 `json:"t"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	Maker     bool   `json:"m"`

	// This field value is not used but still need to present
	// because otherwise json decoder does case-insensitive match with "m" and "M".
	IsBestMatch bool `json:"M"`
}

type wsDepthBinance struct {
	Event     string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	FirstID   int64      `json:"U"`
	FinalID   int64      `json:"u"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

// DecodeTrade decodes a trade stream frame.
func DecodeTrade(frame []byte) (TradeEvent, error) {
	wr := wsTradeBinance{}
	if err := jsoniter.Unmarshal(frame, &wr); err != nil {
		return TradeEvent{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if wr.Price == "" || wr.Qty == "" {
		return TradeEvent{}, errors.Wrap(ErrMalformed, "trade without price or quantity")
	}
	price, err := decimal.NewFromString(wr.Price)
	if err != nil {
		return TradeEvent{}, errors.Wrapf(ErrMalformed, "trade price %q", wr.Price)
	}
	qty, err := decimal.NewFromString(wr.Qty)
	if err != nil {
		return TradeEvent{}, errors.Wrapf(ErrMalformed, "trade quantity %q", wr.Qty)
	}
	return TradeEvent{
		EventTime:    wr.EventTime,
		TradeID:      wr.TradeID,
		Price:        price,
		PriceText:    wr.Price,
		Quantity:     qty,
		QuantityText: wr.Qty,
		TradeTime:    wr.TradeTime,
		IsBuyerMaker: wr.Maker,
	}, nil
}

// DecodeDiff decodes a depth stream frame.
func DecodeDiff(frame []byte) (OrderBookDiff, error) {
	wr := wsDepthBinance{}
	if err := jsoniter.Unmarshal(frame, &wr); err != nil {
		return OrderBookDiff{}, errors.Wrap(ErrMalformed, err.Error())
	}
	bids, err := decodeLevels(wr.Bids)
	if err != nil {
		return OrderBookDiff{}, errors.WithMessage(err, "bids")
	}
	asks, err := decodeLevels(wr.Asks)
	if err != nil {
		return OrderBookDiff{}, errors.WithMessage(err, "asks")
	}
	return OrderBookDiff{
		EventTime:     wr.EventTime,
		FirstUpdateID: wr.FirstID,
		LastUpdateID:  wr.FinalID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func decodeLevels(raw [][]string) ([]Level, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]Level, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			return nil, errors.Wrapf(ErrMalformed, "level %v", lvl)
		}
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "level price %q", lvl[0])
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "level quantity %q", lvl[1])
		}
		levels = append(levels, Level{Price: price, PriceText: lvl[0], Quantity: qty, QuantityText: lvl[1]})
	}
	return levels, nil
}
