package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

func TestShortDate(t *testing.T) {
	assert.Equal(t, "06-03", shortDate("2024-06-03"))
	assert.Equal(t, "06-03", shortDate("06-03"))
	assert.Equal(t, "", shortDate(""))
}

func TestRenderReport(t *testing.T) {
	out := renderReport(consts.AnalysisErrorPrefix + "boom")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "❌")

	out = renderReport("  Strong buy.  ")
	assert.Contains(t, out, "Strong buy.")
	assert.NotContains(t, out, "❌")
}

func TestRenderIndicators(t *testing.T) {
	set := models.IndicatorSet{
		consts.IndicatorRSI: models.ScalarIndicator(61.25),
		consts.IndicatorMACD: models.WindowIndicator([]models.IndicatorPoint{
			{Date: "2024-06-03", Value: 2},
			{Date: "2024-06-04", Value: 3},
		}),
		consts.IndicatorVWAP: models.UnavailableIndicator(),
	}
	out := renderIndicators("TSLA", set)
	assert.Contains(t, out, "61.25")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "06-03=2")
	assert.Contains(t, out, "06-04=3")
	assert.Less(t, bytes.Index([]byte(out), []byte("MACD")), bytes.Index([]byte(out), []byte("RSI")))
}

func TestRenderNewsAndQuote(t *testing.T) {
	out := renderNews(models.NewsResult{
		Stock:  "NVDA",
		Source: "yahoo_feed",
		News: []models.NewsItem{
			{Title: "Nvidia beats", Publisher: "Reuters", Link: "https://example.com/a", PublishedAt: 1717000000},
			{Title: "No date", Publisher: "AP", Link: "https://example.com/b"},
		},
	})
	assert.Contains(t, out, "1. Nvidia beats")
	assert.Contains(t, out, "2. No date")
	assert.Contains(t, out, "yahoo_feed")

	out = renderQuote(&models.Quote{
		Symbol:    "NVDA",
		Name:      "NVIDIA Corporation",
		Price:     decimal.RequireFromString("121.4"),
		Open:      decimal.RequireFromString("119"),
		High:      decimal.RequireFromString("122.5"),
		Low:       decimal.RequireFromString("118.75"),
		Volume:    1234,
		Timestamp: time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, out, "NVIDIA Corporation")
	assert.Contains(t, out, "121.40")
	assert.Contains(t, out, "122.50 / 118.75")
	assert.Contains(t, out, "1234")
}

func TestDisplayWelcomeBanner(t *testing.T) {
	var buf bytes.Buffer
	DisplayWelcomeBanner(&buf)
	assert.Contains(t, buf.String(), "StockPilot")
}
