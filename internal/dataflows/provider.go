package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/models"
)

// PriceProvider supplies daily OHLCV history and the latest quote.
// History returns bars ascending by date with one bar per day.
type PriceProvider interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]*models.MarketData, error)
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// NewPriceProvider picks the market data backend named in cfg.
func NewPriceProvider(cfg *config.Config) (PriceProvider, error) {
	switch cfg.MarketDataProvider {
	case "", config.MarketYahoo:
		return NewYahooFinanceClient(), nil
	case config.MarketLongport:
		return NewLongportClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported market data provider %q", cfg.MarketDataProvider)
	}
}

// RecentHistory fetches the bars of the last `days` calendar days.
func RecentHistory(ctx context.Context, p PriceProvider, symbol string, days int) ([]*models.MarketData, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	return p.History(ctx, symbol, start, end)
}
