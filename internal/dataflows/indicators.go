package dataflows

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

// IndicatorMode selects how ComputeIndicators presents each indicator.
type IndicatorMode string

const (
	// ModeLatest keeps the newest valid sample, rounded to 2 decimals.
	ModeLatest IndicatorMode = "latest"
	// ModeWindow keeps the last WindowSize valid samples truncated to integers.
	ModeWindow IndicatorMode = "window"
)

const (
	MinIndicatorRows = 15
	WindowSize       = 12

	rsiPeriod        = 14
	stochasticPeriod = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
)

func ParseIndicatorMode(s string) (IndicatorMode, error) {
	switch IndicatorMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLatest:
		return ModeLatest, nil
	case ModeWindow:
		return ModeWindow, nil
	default:
		return "", fmt.Errorf("unknown indicator mode %q", s)
	}
}

// sample is one defined indicator value at a row.
type sample struct {
	date  time.Time
	value float64
}

// ComputeIndicators derives RSI, MACD, MACD_Signal, the stochastic %K and the
// cumulative VWAP from an ascending daily series. Fewer than MinIndicatorRows
// rows fail with ErrInsufficientHistory. Past that, an indicator with no valid
// sample (MACD_Signal before 34 rows, VWAP with zero volume, %K on flat
// ranges) is reported unavailable; the call fails with ErrDataUnavailable only
// when nothing could be computed.
func ComputeIndicators(series []*models.MarketData, mode IndicatorMode) (models.IndicatorSet, error) {
	if len(series) < MinIndicatorRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", ErrInsufficientHistory, len(series), MinIndicatorRows)
	}
	switch mode {
	case "":
		mode = ModeLatest
	case ModeLatest, ModeWindow:
	default:
		return nil, fmt.Errorf("unknown indicator mode %q", mode)
	}

	high, low, closes, volume := columns(series)

	macd, signal := macdSamples(series, closes)
	indicators := map[string][]sample{
		consts.IndicatorRSI:        rsiSamples(series, closes),
		consts.IndicatorStochastic: stochasticSamples(series, high, low, closes),
		consts.IndicatorMACD:       macd,
		consts.IndicatorMACDSignal: signal,
		consts.IndicatorVWAP:       vwapSamples(series, high, low, closes, volume),
	}

	result := make(models.IndicatorSet, len(indicators))
	defined := 0
	for name, samples := range indicators {
		switch {
		case len(samples) == 0:
			result[name] = models.UnavailableIndicator()
			continue
		case mode == ModeWindow:
			result[name] = models.WindowIndicator(window(samples))
		default:
			result[name] = models.ScalarIndicator(round2(samples[len(samples)-1].value))
		}
		defined++
	}
	if defined == 0 {
		return nil, fmt.Errorf("%w: no indicator is defined over %d rows", ErrDataUnavailable, len(series))
	}
	return result, nil
}

// LatestFromWindow picks the newest entry of every windowed indicator.
func LatestFromWindow(set models.IndicatorSet) map[string]float64 {
	out := make(map[string]float64, len(set))
	for name, v := range set {
		if v.Unavailable {
			continue
		}
		if !v.IsWindow() {
			out[name] = *v.Latest
			continue
		}
		if len(v.Window) == 0 {
			continue
		}
		out[name] = float64(v.Window[len(v.Window)-1].Value)
	}
	return out
}

func columns(series []*models.MarketData) (high, low, closes, volume []float64) {
	n := len(series)
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	volume = make([]float64, n)
	for i, bar := range series {
		high[i] = bar.High.InexactFloat64()
		low[i] = bar.Low.InexactFloat64()
		closes[i] = bar.Close.InexactFloat64()
		volume[i] = float64(bar.Volume)
	}
	return high, low, closes, volume
}

// rsiSamples uses Wilder smoothing seeded by the mean of the first 14 changes.
func rsiSamples(series []*models.MarketData, closes []float64) []sample {
	if len(closes) <= rsiPeriod {
		return nil
	}
	rsi := talib.Rsi(closes, rsiPeriod)
	out := make([]sample, 0, len(closes)-rsiPeriod)
	for i := rsiPeriod; i < len(rsi); i++ {
		if math.IsNaN(rsi[i]) {
			continue
		}
		out = append(out, sample{date: series[i].Date, value: rsi[i]})
	}
	return out
}

// macdSamples computes EMA12-EMA26 and its 9-period EMA over the defined
// MACD values only.
func macdSamples(series []*models.MarketData, closes []float64) (macd, signal []sample) {
	if len(closes) < macdSlowPeriod {
		return nil, nil
	}
	fast := talib.Ema(closes, macdFastPeriod)
	slow := talib.Ema(closes, macdSlowPeriod)

	start := macdSlowPeriod - 1
	line := make([]float64, 0, len(closes)-start)
	for i := start; i < len(closes); i++ {
		v := fast[i] - slow[i]
		line = append(line, v)
		macd = append(macd, sample{date: series[i].Date, value: v})
	}

	if len(line) < macdSignalPeriod {
		return macd, nil
	}
	ema := talib.Ema(line, macdSignalPeriod)
	for i := macdSignalPeriod - 1; i < len(line); i++ {
		signal = append(signal, sample{date: series[start+i].Date, value: ema[i]})
	}
	return macd, signal
}

// stochasticSamples is the fast %K. Flat windows (HH == LL) have no value.
func stochasticSamples(series []*models.MarketData, high, low, closes []float64) []sample {
	if len(closes) < stochasticPeriod {
		return nil
	}
	fastK, _ := talib.StochF(high, low, closes, stochasticPeriod, 1, talib.SMA)

	var out []sample
	for i := stochasticPeriod - 1; i < len(closes); i++ {
		hh, ll := high[i], low[i]
		for j := i - stochasticPeriod + 1; j < i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		if hh == ll || i >= len(fastK) {
			continue
		}
		out = append(out, sample{date: series[i].Date, value: fastK[i]})
	}
	return out
}

// vwapSamples is cumulative from the first row of the series.
func vwapSamples(series []*models.MarketData, high, low, closes, volume []float64) []sample {
	var pv, vol float64
	out := make([]sample, 0, len(series))
	for i := range series {
		typical := (high[i] + low[i] + closes[i]) / 3
		pv += typical * volume[i]
		vol += volume[i]
		if vol == 0 {
			continue
		}
		out = append(out, sample{date: series[i].Date, value: pv / vol})
	}
	return out
}

func window(samples []sample) []models.IndicatorPoint {
	if len(samples) > WindowSize {
		samples = samples[len(samples)-WindowSize:]
	}
	points := make([]models.IndicatorPoint, len(samples))
	for i, s := range samples {
		points[i] = models.IndicatorPoint{
			Date:  s.date.Format(time.DateOnly),
			Value: int64(math.Trunc(s.value)),
		}
	}
	return points
}
