package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/internal/utils"
)

// diskRetention bounds how long CSV files linger after they went stale.
const diskRetention = 7 * 24 * time.Hour

// PriceSource is the provider being cached. It matches dataflows.PriceProvider.
type PriceSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]*models.MarketData, error)
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// MarketDataCache serves daily bars from memory, then from CSV files on disk,
// then from the wrapped source. Quotes are always live.
type MarketDataCache struct {
	next       PriceSource
	ttl        time.Duration
	csvManager *utils.CSVManager

	mu          sync.RWMutex
	memoryCache map[string]*CachedData
	group       singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

type CachedData struct {
	Data      []*models.MarketData
	Symbol    string
	Timestamp time.Time
}

type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

type Option func(*MarketDataCache)

// WithCSVDir enables the disk tier rooted at dir.
func WithCSVDir(dir string) Option {
	return func(c *MarketDataCache) {
		if strings.TrimSpace(dir) != "" {
			c.csvManager = utils.NewCSVManager(dir)
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *MarketDataCache) { c.now = now }
}

func NewMarketDataCache(next PriceSource, ttl time.Duration, opts ...Option) *MarketDataCache {
	c := &MarketDataCache{
		next:        next,
		ttl:         ttl,
		memoryCache: make(map[string]*CachedData),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.csvManager != nil {
		if n, err := c.csvManager.CleanOldCSVFiles(diskRetention); err != nil {
			logger.Warn(context.Background(), "csv cache cleanup failed", "dir", c.csvManager.BasePath(), "error", err)
		} else if n > 0 {
			logger.Debug(context.Background(), "csv cache cleanup", "removed", n)
		}
	}
	return c
}

func cacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToUpper(symbol), start.Format(time.DateOnly), end.Format(time.DateOnly))
}

// History implements the price provider contract. Ranges are cached at day
// granularity, so repeated "last N days" lookups on the same day share an entry.
func (c *MarketDataCache) History(ctx context.Context, symbol string, start, end time.Time) ([]*models.MarketData, error) {
	key := cacheKey(symbol, start, end)

	if data, ok := c.fromMemory(key); ok {
		c.hits.Add(1)
		logger.Debug(ctx, "price cache hit", "tier", "memory", "key", key)
		return data, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if data, ok := c.fromDisk(ctx, key, symbol, start, end); ok {
			c.hits.Add(1)
			return data, nil
		}
		c.misses.Add(1)
		data, err := c.next.History(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		fetchedAt := c.now()
		c.store(key, symbol, data, fetchedAt)
		if c.csvManager != nil {
			if err := c.csvManager.WriteBars(symbol, start, end, data, fetchedAt); err != nil {
				logger.Warn(ctx, "csv cache write failed", "symbol", symbol, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneBars(v.([]*models.MarketData)), nil
}

func (c *MarketDataCache) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return c.next.Quote(ctx, symbol)
}

func (c *MarketDataCache) fromMemory(key string) ([]*models.MarketData, bool) {
	c.mu.RLock()
	cached, ok := c.memoryCache[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(cached.Timestamp) > c.ttl {
		c.mu.Lock()
		if cur, still := c.memoryCache[key]; still && cur == cached {
			delete(c.memoryCache, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return cloneBars(cached.Data), true
}

func (c *MarketDataCache) fromDisk(ctx context.Context, key, symbol string, start, end time.Time) ([]*models.MarketData, bool) {
	if c.csvManager == nil {
		return nil, false
	}
	data, fetchedAt, err := c.csvManager.ReadBars(symbol, start, end)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "csv cache unreadable", "symbol", symbol, "error", err)
		}
		return nil, false
	}
	if c.now().Sub(fetchedAt) > c.ttl {
		return nil, false
	}
	logger.Debug(ctx, "price cache hit", "tier", "csv", "key", key)
	c.store(key, symbol, data, fetchedAt)
	return data, true
}

func (c *MarketDataCache) store(key, symbol string, data []*models.MarketData, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryCache[key] = &CachedData{
		Data:      cloneBars(data),
		Symbol:    symbol,
		Timestamp: at,
	}
}

func (c *MarketDataCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.memoryCache)
	c.mu.RUnlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: entries}
}

// cloneBars copies the slice and its bars; callers are free to mutate results.
func cloneBars(in []*models.MarketData) []*models.MarketData {
	if in == nil {
		return nil
	}
	out := make([]*models.MarketData, len(in))
	for i, bar := range in {
		if bar == nil {
			continue
		}
		cp := *bar
		out[i] = &cp
	}
	return out
}
