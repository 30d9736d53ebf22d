package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/models"
)

// MetricsFetcher is satisfied by *dataflows.FundamentalsClient.
type MetricsFetcher interface {
	GetFinancialMetrics(ctx context.Context, ticker string) (*models.FinancialMetrics, error)
}

// NewsFetcher is satisfied by *dataflows.NewsRetriever. Retrieve never fails.
type NewsFetcher interface {
	Retrieve(ctx context.Context, ticker string) models.NewsResult
}

type TickerInput struct {
	Ticker string `json:"ticker"`
}

func tickerParams() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"ticker": {
			Type:     schema.String,
			Desc:     "The stock ticker, e.g. TSLA or 2330.TW",
			Required: true,
		},
	}
}

func NewFinancialMetricsTool(fetcher MetricsFetcher) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolGetFinancialMetrics,
			Desc:        "Fetches key financial ratios (P/E, P/B, debt-to-equity, profit margins, revenue growth) for a given ticker. Missing values are reported as N/A.",
			ParamsOneOf: schema.NewParamsOneOfByParams(tickerParams()),
		},
		func(ctx context.Context, input TickerInput) (*models.FinancialMetrics, error) {
			if err := dataflows.ValidateSymbol(input.Ticker); err != nil {
				return nil, err
			}
			return fetcher.GetFinancialMetrics(ctx, input.Ticker)
		},
	)
}

func NewFinancialNewsTool(news NewsFetcher) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolGetFinancialNews,
			Desc:        "Fetches up to five recent news headlines for a given ticker.",
			ParamsOneOf: schema.NewParamsOneOfByParams(tickerParams()),
		},
		func(ctx context.Context, input TickerInput) (*models.NewsResult, error) {
			if err := dataflows.ValidateSymbol(input.Ticker); err != nil {
				return nil, err
			}
			result := news.Retrieve(ctx, input.Ticker)
			return &result, nil
		},
	)
}

// Sources bundles the data backends behind the analysis tools.
type Sources struct {
	Prices        dataflows.PriceProvider
	Fundamentals  MetricsFetcher
	News          NewsFetcher
	IndicatorMode dataflows.IndicatorMode
}

// NewAnalysisRegistry registers the four analysis tools.
func NewAnalysisRegistry(ctx context.Context, src Sources) (*Registry, error) {
	mode := src.IndicatorMode
	if mode == "" {
		mode = dataflows.ModeLatest
	}
	return NewRegistry(ctx,
		NewStockPricesTool(src.Prices, mode),
		NewFinancialMetricsTool(src.Fundamentals),
		NewFinancialNewsTool(src.News),
		NewPriceHistoryTool(src.Prices),
	)
}
