package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/utils"
)

type countingSource struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (s *countingSource) History(_ context.Context, symbol string, start, _ time.Time) ([]*models.MarketData, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return []*models.MarketData{
		{Symbol: symbol, Date: start, Open: decimal.RequireFromString("10.5"), High: decimal.NewFromInt(11), Low: decimal.NewFromInt(10), Close: decimal.RequireFromString("10.75"), AdjClose: decimal.RequireFromString("10.75"), Volume: 1200},
		{Symbol: symbol, Date: start.AddDate(0, 0, 1), Open: decimal.NewFromInt(11), High: decimal.NewFromInt(12), Low: decimal.NewFromInt(11), Close: decimal.NewFromInt(12), AdjClose: decimal.NewFromInt(12), Volume: 900},
	}, nil
}

func (s *countingSource) Quote(_ context.Context, symbol string) (*models.Quote, error) {
	return &models.Quote{Symbol: symbol}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	rangeStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2024, 3, 29, 17, 0, 0, 0, time.UTC)
)

func TestMemoryTierExpires(t *testing.T) {
	src := &countingSource{}
	clock := &fakeClock{t: time.Now()}
	c := NewMarketDataCache(src, time.Minute, withClock(clock.Now))
	ctx := context.Background()

	first, err := c.History(ctx, "AAPL", rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// same days, different clock times
	_, err = c.History(ctx, "aapl", rangeStart.Add(time.Hour), rangeEnd.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.calls.Load())

	clock.Advance(2 * time.Minute)
	_, err = c.History(ctx, "AAPL", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestResultsAreCopies(t *testing.T) {
	c := NewMarketDataCache(&countingSource{}, time.Hour)
	ctx := context.Background()

	first, err := c.History(ctx, "MSFT", rangeStart, rangeEnd)
	require.NoError(t, err)
	first[0].Close = decimal.Zero

	second, err := c.History(ctx, "MSFT", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, "10.75", second[0].Close.String())
}

func TestErrorsAreNotCached(t *testing.T) {
	boom := errors.New("upstream down")
	src := &countingSource{err: boom}
	c := NewMarketDataCache(src, time.Hour)

	_, err := c.History(context.Background(), "TSLA", rangeStart, rangeEnd)
	assert.ErrorIs(t, err, boom)
	_, err = c.History(context.Background(), "TSLA", rangeStart, rangeEnd)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, src.calls.Load())
	assert.Zero(t, c.Stats().Entries)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	c := NewMarketDataCache(src, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bars, err := c.History(context.Background(), "NVDA", rangeStart, rangeEnd)
			assert.NoError(t, err)
			assert.Len(t, bars, 2)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestCSVTierSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Now()}
	ctx := context.Background()

	src := &countingSource{}
	c := NewMarketDataCache(src, 10*time.Minute, WithCSVDir(dir), withClock(clock.Now))
	_, err := c.History(ctx, "BRK/B", rangeStart, rangeEnd)
	require.NoError(t, err)

	_, err = os.Stat(utils.NewCSVManager(dir).BarsPath("BRK/B", rangeStart, rangeEnd))
	require.NoError(t, err)

	// a fresh process sees the file
	src2 := &countingSource{}
	c2 := NewMarketDataCache(src2, 10*time.Minute, WithCSVDir(dir), withClock(clock.Now))
	bars, err := c2.History(ctx, "BRK/B", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Zero(t, src2.calls.Load())
	require.Len(t, bars, 2)
	assert.Equal(t, "10.5", bars[0].Open.String())
	assert.Equal(t, int64(1200), bars[0].Volume)
	assert.True(t, bars[1].Date.Equal(rangeStart.AddDate(0, 0, 1).Truncate(24*time.Hour)))

	// and ignores it once stale
	clock.Advance(11 * time.Minute)
	c3 := NewMarketDataCache(src2, 10*time.Minute, WithCSVDir(dir), withClock(clock.Now))
	_, err = c3.History(ctx, "BRK/B", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 1, src2.calls.Load())
}

func TestQuotePassesThrough(t *testing.T) {
	c := NewMarketDataCache(&countingSource{}, time.Hour)
	q, err := c.Quote(context.Background(), "AMD")
	require.NoError(t, err)
	assert.Equal(t, "AMD", q.Symbol)
	assert.Zero(t, c.Stats().Entries)
}
