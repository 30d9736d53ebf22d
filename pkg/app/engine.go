package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/agents"
	"github.com/dyike/StockPilot/internal/cache"
	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/graph"
	"github.com/dyike/StockPilot/internal/tools"
)

// DataSources are the market, fundamentals and news backends for one config.
type DataSources struct {
	Prices        dataflows.PriceProvider
	Fundamentals  *dataflows.FundamentalsClient
	News          *dataflows.NewsRetriever
	TaiwanNews    *dataflows.NewsRetriever
	IndicatorMode dataflows.IndicatorMode
}

func NewDataSources(cfg config.Config) (*DataSources, error) {
	prices, err := dataflows.NewPriceProvider(&cfg)
	if err != nil {
		return nil, err
	}
	if ttl := cfg.PriceCacheTTL(); ttl > 0 {
		prices = cache.NewMarketDataCache(prices, ttl, cache.WithCSVDir(cfg.PriceCacheDir))
	}
	mode, err := dataflows.ParseIndicatorMode(cfg.IndicatorMode)
	if err != nil {
		return nil, err
	}
	return &DataSources{
		Prices:        prices,
		Fundamentals:  dataflows.NewFundamentalsClient(cfg.YahooQueryURL, cfg.Timeout(), cfg.UserAgent),
		News:          dataflows.DefaultNewsRetriever(&cfg),
		TaiwanNews:    dataflows.TaiwanNewsRetriever(&cfg),
		IndicatorMode: mode,
	}, nil
}

// Engine is an immutable snapshot of everything built from one config.
type Engine struct {
	Config  config.Config
	BuiltAt time.Time
	Version uint64

	Data         *DataSources
	Registry     *tools.Registry
	Orchestrator *graph.Orchestrator
}

var engineSeq atomic.Uint64

// BuildEngine wires data sources, tools, the chat model and the orchestrator.
func BuildEngine(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx := context.Background()

	data, err := NewDataSources(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewAnalysisRegistry(ctx, tools.Sources{
		Prices:        data.Prices,
		Fundamentals:  data.Fundamentals,
		News:          data.News,
		IndicatorMode: data.IndicatorMode,
	})
	if err != nil {
		return nil, err
	}

	chatModel, err := agents.NewChatModel(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	mode, err := graph.ParseMode(cfg.AgentMode)
	if err != nil {
		return nil, err
	}
	orchestrator, err := graph.NewOrchestrator(ctx, graph.AgentConfig{
		Model:         chatModel,
		Registry:      registry,
		Mode:          mode,
		MaxToolRounds: cfg.MaxToolRounds,
		Language:      cfg.ReportLanguage,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Config:       cfg,
		BuiltAt:      time.Now(),
		Version:      engineSeq.Add(1),
		Data:         data,
		Registry:     registry,
		Orchestrator: orchestrator,
	}, nil
}
