package dataflows

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/models"
)

func liveTests(t *testing.T) {
	t.Helper()
	if os.Getenv("STOCKPILOT_LIVE_TESTS") != "1" {
		t.Skip("set STOCKPILOT_LIVE_TESTS=1 to hit real market data endpoints")
	}
}

func TestSortAndDedupe(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	series := []*models.MarketData{
		{Date: day(3), Close: decimal.NewFromInt(3)},
		{Date: day(1), Close: decimal.NewFromInt(1)},
		nil,
		{Date: day(2), Close: decimal.NewFromInt(2)},
		{Date: day(3).Add(4 * time.Hour), Close: decimal.NewFromInt(33)},
	}

	out := SortAndDedupe(series)
	require.Len(t, out, 3)
	assert.True(t, out[0].Date.Equal(day(1)))
	assert.True(t, out[1].Date.Equal(day(2)))
	assert.Equal(t, "33", out[2].Close.String(), "later bar for the same day wins")
}

func TestNewPriceProvider(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	p, err := NewPriceProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &YahooFinanceClient{}, p)

	cfg.MarketDataProvider = config.MarketLongport
	_, err = NewPriceProvider(cfg)
	assert.Error(t, err, "credentials are required")

	cfg.MarketDataProvider = "bloomberg"
	_, err = NewPriceProvider(cfg)
	assert.Error(t, err)
}

func TestYahooFinanceHistoryLive(t *testing.T) {
	liveTests(t)
	series, err := RecentHistory(context.Background(), NewYahooFinanceClient(), "TSLA", 91)
	require.NoError(t, err)
	assert.Greater(t, len(series), MinIndicatorRows)
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i-1].Date.Before(series[i].Date))
	}
}

func TestLongportHistoryLive(t *testing.T) {
	cfg := config.DefaultConfig()
	client, err := NewLongportClient(cfg)
	if err != nil {
		t.Skipf("Skipping test due to missing Longport API credentials: %v", err)
	}
	series, err := RecentHistory(context.Background(), client, "700.HK", 30)
	require.NoError(t, err)
	assert.NotEmpty(t, series)
}
