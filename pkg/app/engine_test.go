package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/cache"
	"github.com/dyike/StockPilot/internal/dataflows"
)

func TestNewDataSourcesPriceCache(t *testing.T) {
	cfg := *config.DefaultConfigWithRoot(t.TempDir())

	data, err := NewDataSources(cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.MarketDataCache{}, data.Prices)
	assert.Equal(t, dataflows.ModeLatest, data.IndicatorMode)

	cfg.PriceCacheTTLMinutes = 0
	data, err = NewDataSources(cfg)
	require.NoError(t, err)
	assert.IsType(t, &dataflows.YahooFinanceClient{}, data.Prices)
}

func TestBuildEngineRejectsInvalidConfig(t *testing.T) {
	cfg := *config.DefaultConfigWithRoot(t.TempDir())
	cfg.IndicatorMode = "hourly"
	_, err := BuildEngine(cfg)
	assert.ErrorContains(t, err, "invalid config")
}
