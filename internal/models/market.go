package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketData is one daily OHLCV bar.
type MarketData struct {
	Symbol   string          `json:"symbol"`
	Date     time.Time       `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   int64           `json:"volume"`
}

type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceBar is the JSON shape returned by the price history tool.
type PriceBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (m *MarketData) Bar() PriceBar {
	return PriceBar{
		Date:   m.Date.Format(time.DateOnly),
		Open:   m.Open.Round(2).InexactFloat64(),
		High:   m.High.Round(2).InexactFloat64(),
		Low:    m.Low.Round(2).InexactFloat64(),
		Close:  m.Close.Round(2).InexactFloat64(),
		Volume: m.Volume,
	}
}
