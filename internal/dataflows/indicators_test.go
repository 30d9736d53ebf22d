package dataflows

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

var allIndicators = []string{
	consts.IndicatorRSI,
	consts.IndicatorStochastic,
	consts.IndicatorMACD,
	consts.IndicatorMACDSignal,
	consts.IndicatorVWAP,
}

func makeSeries(n int, closeAt func(i int) float64) []*models.MarketData {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]*models.MarketData, n)
	for i := 0; i < n; i++ {
		c := closeAt(i)
		series[i] = &models.MarketData{
			Symbol: "TSLA",
			Date:   start.AddDate(0, 0, i),
			Open:   decimal.NewFromFloat(c - 0.5),
			High:   decimal.NewFromFloat(c + 1.5),
			Low:    decimal.NewFromFloat(c - 1.5),
			Close:  decimal.NewFromFloat(c),
			Volume: int64(1000 + 10*i),
		}
	}
	return series
}

func wave(i int) float64 {
	return 200 + 15*math.Sin(float64(i)/5) + float64(i)*0.3
}

func TestComputeIndicatorsTooFewRows(t *testing.T) {
	for _, n := range []int{0, 1, 14} {
		_, err := ComputeIndicators(makeSeries(n, wave), ModeLatest)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientHistory)
		assert.Contains(t, err.Error(), "insufficient price history")
	}
}

func TestComputeIndicatorsShortSeriesLacksMACD(t *testing.T) {
	// 20 rows give RSI, %K and VWAP but no MACD yet.
	set, err := ComputeIndicators(makeSeries(20, wave), ModeLatest)
	require.NoError(t, err)
	require.Len(t, set, len(allIndicators))
	assert.True(t, set[consts.IndicatorMACD].Unavailable)
	assert.True(t, set[consts.IndicatorMACDSignal].Unavailable)
	for _, name := range []string{consts.IndicatorRSI, consts.IndicatorStochastic, consts.IndicatorVWAP} {
		require.NotNil(t, set[name].Latest, name)
	}

	// 30 rows: MACD line defined, signal still warming up.
	set, err = ComputeIndicators(makeSeries(30, wave), ModeWindow)
	require.NoError(t, err)
	assert.True(t, set[consts.IndicatorMACD].IsWindow())
	assert.True(t, set[consts.IndicatorMACDSignal].Unavailable)

	set, err = ComputeIndicators(makeSeries(34, wave), ModeLatest)
	require.NoError(t, err)
	for _, name := range allIndicators {
		assert.False(t, set[name].Unavailable, name)
	}
}

func TestZeroVolumeSeriesHasNoVWAP(t *testing.T) {
	series := makeSeries(65, wave)
	for _, bar := range series {
		bar.Volume = 0
	}
	set, err := ComputeIndicators(series, ModeLatest)
	require.NoError(t, err)
	assert.True(t, set[consts.IndicatorVWAP].Unavailable)

	rsi := *set[consts.IndicatorRSI].Latest
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
	require.NotNil(t, set[consts.IndicatorMACD].Latest)
	require.NotNil(t, set[consts.IndicatorStochastic].Latest)

	windowed, err := ComputeIndicators(series, ModeWindow)
	require.NoError(t, err)
	latest := LatestFromWindow(windowed)
	assert.NotContains(t, latest, consts.IndicatorVWAP)
	assert.Contains(t, latest, consts.IndicatorRSI)
}

func TestUnknownModeIsRejected(t *testing.T) {
	_, err := ComputeIndicators(makeSeries(40, wave), IndicatorMode("hourly"))
	assert.ErrorContains(t, err, "hourly")
}

func TestComputeIndicatorsLatest(t *testing.T) {
	series := makeSeries(65, wave)
	set, err := ComputeIndicators(series, ModeLatest)
	require.NoError(t, err)

	for _, name := range allIndicators {
		v, ok := set[name]
		require.True(t, ok, name)
		require.False(t, v.IsWindow(), name)
		assert.Equal(t, round2(*v.Latest), *v.Latest, "%s is rounded to 2 dp", name)
	}

	rsi := *set[consts.IndicatorRSI].Latest
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)

	minLow, maxHigh := math.Inf(1), math.Inf(-1)
	for _, bar := range series {
		minLow = math.Min(minLow, bar.Low.InexactFloat64())
		maxHigh = math.Max(maxHigh, bar.High.InexactFloat64())
	}
	vwap := *set[consts.IndicatorVWAP].Latest
	assert.GreaterOrEqual(t, vwap, minLow)
	assert.LessOrEqual(t, vwap, maxHigh)

	k := *set[consts.IndicatorStochastic].Latest
	assert.GreaterOrEqual(t, k, 0.0)
	assert.LessOrEqual(t, k, 100.0)
}

func TestComputeIndicatorsWindow(t *testing.T) {
	series := makeSeries(65, wave)
	set, err := ComputeIndicators(series, ModeWindow)
	require.NoError(t, err)

	lastDate := series[len(series)-1].Date.Format(time.DateOnly)
	for _, name := range allIndicators {
		v := set[name]
		require.True(t, v.IsWindow(), name)
		require.Len(t, v.Window, WindowSize, name)
		assert.Equal(t, lastDate, v.Window[len(v.Window)-1].Date, name)
		for i := 1; i < len(v.Window); i++ {
			assert.Less(t, v.Window[i-1].Date, v.Window[i].Date)
		}
	}
}

func TestWindowRoundTripMatchesLatest(t *testing.T) {
	series := makeSeries(65, wave)
	latest, err := ComputeIndicators(series, ModeLatest)
	require.NoError(t, err)
	windowed, err := ComputeIndicators(series, ModeWindow)
	require.NoError(t, err)

	fromWindow := LatestFromWindow(windowed)
	for _, name := range allIndicators {
		// integer truncation vs 2-decimal rounding differ by less than one
		assert.InDelta(t, *latest[name].Latest, fromWindow[name], 1.0, name)
	}
}

func TestRSIRisingSeries(t *testing.T) {
	set, err := ComputeIndicators(makeSeries(40, func(i int) float64 { return 100 + float64(i) }), ModeLatest)
	require.NoError(t, err)
	assert.Equal(t, 100.0, *set[consts.IndicatorRSI].Latest)
}

func TestFlatSeriesHasNoStochastic(t *testing.T) {
	series := makeSeries(40, func(int) float64 { return 50 })
	for _, bar := range series {
		bar.High = bar.Close
		bar.Low = bar.Close
	}
	set, err := ComputeIndicators(series, ModeLatest)
	require.NoError(t, err)
	assert.True(t, set[consts.IndicatorStochastic].Unavailable)
	assert.Equal(t, 50.0, *set[consts.IndicatorVWAP].Latest)
	assert.Equal(t, 0.0, *set[consts.IndicatorMACD].Latest)
}

func TestFlatTailKeepsEarlierStochastic(t *testing.T) {
	// the last 14 bars trade in a single price, earlier ones do not
	series := makeSeries(40, func(i int) float64 {
		if i >= 20 {
			return 75
		}
		return wave(i)
	})
	for _, bar := range series[20:] {
		bar.High = bar.Close
		bar.Low = bar.Close
	}

	set, err := ComputeIndicators(series, ModeWindow)
	require.NoError(t, err)
	k := set[consts.IndicatorStochastic]
	require.True(t, k.IsWindow())
	require.NotEmpty(t, k.Window)
	assert.Less(t, k.Window[len(k.Window)-1].Date, series[len(series)-1].Date.Format(time.DateOnly))
}

func TestVWAPIsCumulative(t *testing.T) {
	series := makeSeries(2, func(i int) float64 { return 10 + float64(i)*10 })
	series[0].Volume = 100
	series[1].Volume = 300

	high, low, closes, volume := columns(series)
	samples := vwapSamples(series, high, low, closes, volume)
	require.Len(t, samples, 2)
	assert.InDelta(t, 10.0, samples[0].value, 1e-9)
	assert.InDelta(t, (10*100+20*300)/400.0, samples[1].value, 1e-9)
}

func TestParseIndicatorMode(t *testing.T) {
	m, err := ParseIndicatorMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLatest, m)

	m, err = ParseIndicatorMode("Window")
	require.NoError(t, err)
	assert.Equal(t, ModeWindow, m)

	_, err = ParseIndicatorMode("hourly")
	assert.Error(t, err)
}
