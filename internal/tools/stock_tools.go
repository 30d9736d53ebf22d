package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/models"
)

const (
	// 13 weeks of calendar days.
	IndicatorLookbackDays = 91

	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

type StockPricesInput struct {
	Ticker string `json:"ticker"`
	Mode   string `json:"mode,omitempty"`
}

type StockPricesOutput struct {
	Stock            string              `json:"stock"`
	LatestClosePrice float64             `json:"latest_close_price"`
	Indicators       models.IndicatorSet `json:"indicators"`
}

type PriceHistoryInput struct {
	Ticker string `json:"ticker"`
	Days   int    `json:"days,omitempty"`
}

type PriceHistoryOutput struct {
	Stock string            `json:"stock"`
	Bars  []models.PriceBar `json:"bars"`
}

// NewStockPricesTool computes technical indicators over the last 13 weeks.
// defaultMode applies when the caller leaves mode empty.
func NewStockPricesTool(prices dataflows.PriceProvider, defaultMode dataflows.IndicatorMode) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolGetStockPrices,
			Desc: "Fetches historical stock price data and technical indicators (RSI, MACD, VWAP, Stochastic Oscillator) for a given ticker.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {
					Type:     schema.String,
					Desc:     "The stock ticker, e.g. TSLA or 2330.TW",
					Required: true,
				},
				"mode": {
					Type: schema.String,
					Desc: "latest for the most recent value of each indicator, window for the last 12 values",
					Enum: []string{string(dataflows.ModeLatest), string(dataflows.ModeWindow)},
				},
			}),
		},
		func(ctx context.Context, input StockPricesInput) (*StockPricesOutput, error) {
			if err := dataflows.ValidateSymbol(input.Ticker); err != nil {
				return nil, err
			}
			mode := defaultMode
			if input.Mode != "" {
				parsed, err := dataflows.ParseIndicatorMode(input.Mode)
				if err != nil {
					return nil, err
				}
				mode = parsed
			}

			series, err := dataflows.RecentHistory(ctx, prices, input.Ticker, IndicatorLookbackDays)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch price data for %s: %w", input.Ticker, err)
			}
			if len(series) == 0 {
				return nil, fmt.Errorf("no price data for %s: %w", input.Ticker, dataflows.ErrDataUnavailable)
			}

			indicators, err := dataflows.ComputeIndicators(series, mode)
			if err != nil {
				return nil, fmt.Errorf("technical analysis for %s: %w", input.Ticker, err)
			}

			latest := series[len(series)-1]
			return &StockPricesOutput{
				Stock:            input.Ticker,
				LatestClosePrice: latest.Close.Round(2).InexactFloat64(),
				Indicators:       indicators,
			}, nil
		},
	)
}

// NewPriceHistoryTool returns the last N daily bars.
func NewPriceHistoryTool(prices dataflows.PriceProvider) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolGetPriceHistory,
			Desc: "Fetches daily OHLCV bars for a ticker over the last N calendar days.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {
					Type:     schema.String,
					Desc:     "The stock ticker",
					Required: true,
				},
				"days": {
					Type: schema.Integer,
					Desc: fmt.Sprintf("Number of calendar days to retrieve (default %d, max %d)", defaultHistoryDays, maxHistoryDays),
				},
			}),
		},
		func(ctx context.Context, input PriceHistoryInput) (*PriceHistoryOutput, error) {
			if err := dataflows.ValidateSymbol(input.Ticker); err != nil {
				return nil, err
			}
			days := input.Days
			if days <= 0 {
				days = defaultHistoryDays
			}
			if days > maxHistoryDays {
				days = maxHistoryDays
			}

			series, err := dataflows.RecentHistory(ctx, prices, input.Ticker, days)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch price history for %s: %w", input.Ticker, err)
			}

			bars := make([]models.PriceBar, 0, len(series))
			for _, bar := range series {
				bars = append(bars, bar.Bar())
			}
			return &PriceHistoryOutput{Stock: input.Ticker, Bars: bars}, nil
		},
	)
}
