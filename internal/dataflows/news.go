package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
)

// MaxNewsItems caps the items taken from whichever tier answers.
const MaxNewsItems = 5

// NewsStrategy is one tier of the news fallback chain. Returning zero items
// or an error both mean "try the next tier".
type NewsStrategy interface {
	Name() string
	Fetch(ctx context.Context, ticker string) ([]models.NewsItem, error)
}

// NewsRetriever walks its strategies in order and stops at the first one
// that yields at least one item.
type NewsRetriever struct {
	strategies []NewsStrategy
	fallback   NewsStrategy
	limit      int
}

func NewNewsRetriever(strategies ...NewsStrategy) *NewsRetriever {
	return &NewsRetriever{
		strategies: strategies,
		fallback:   &FallbackStrategy{},
		limit:      MaxNewsItems,
	}
}

// DefaultNewsRetriever is the feed → page → search → notice chain.
func DefaultNewsRetriever(cfg *config.Config) *NewsRetriever {
	timeout := cfg.Timeout()
	fallback := &FallbackStrategy{SiteURL: cfg.YahooSiteURL}
	r := NewNewsRetriever(
		NewYahooFeedStrategy(cfg.YahooQueryURL, timeout, cfg.UserAgent),
		NewYahooPageStrategy(cfg.YahooSiteURL, timeout, cfg.UserAgent),
		NewGoogleSearchStrategy(cfg.GoogleSearchURL, timeout, cfg.UserAgent),
		fallback,
	)
	r.fallback = fallback
	return r
}

// TaiwanNewsRetriever queries tw.news.yahoo.com, then falls back to the notice.
func TaiwanNewsRetriever(cfg *config.Config) *NewsRetriever {
	fallback := &FallbackStrategy{SiteURL: cfg.YahooSiteURL}
	r := NewNewsRetriever(
		NewTaiwanNewsStrategy(cfg.TaiwanNewsURL, cfg.Timeout(), cfg.UserAgent),
		fallback,
	)
	r.fallback = fallback
	return r
}

func (r *NewsRetriever) Tiers() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Retrieve never fails; when every tier comes back empty the result holds the
// single synthetic notice item.
func (r *NewsRetriever) Retrieve(ctx context.Context, ticker string) models.NewsResult {
	for _, strategy := range r.strategies {
		items, err := r.fetch(ctx, strategy, ticker)
		if err != nil {
			logger.Warn(ctx, "news tier failed", "tier", strategy.Name(), "ticker", ticker, "error", err)
			continue
		}
		if len(items) == 0 {
			logger.Debug(ctx, "news tier empty", "tier", strategy.Name(), "ticker", ticker)
			continue
		}
		if len(items) > r.limit {
			items = items[:r.limit]
		}
		return models.NewsResult{Stock: ticker, Source: strategy.Name(), News: items}
	}

	items, _ := r.fallback.Fetch(ctx, ticker)
	return models.NewsResult{Stock: ticker, Source: r.fallback.Name(), News: items}
}

func (r *NewsRetriever) fetch(ctx context.Context, strategy NewsStrategy, ticker string) (items []models.NewsItem, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			items = nil
			err = fmt.Errorf("%w: panic in %s: %v", ErrParseFailure, strategy.Name(), rec)
		}
	}()
	return strategy.Fetch(ctx, ticker)
}

// FallbackStrategy is the terminal tier: one notice pointing at the quote page.
type FallbackStrategy struct {
	SiteURL string
}

func (f *FallbackStrategy) Name() string { return "fallback" }

func (f *FallbackStrategy) Fetch(_ context.Context, ticker string) ([]models.NewsItem, error) {
	site := strings.TrimRight(f.SiteURL, "/")
	if site == "" {
		site = "https://finance.yahoo.com"
	}
	return []models.NewsItem{{
		Title:       fmt.Sprintf("No news found for %s", ticker),
		Publisher:   "System notice",
		Link:        fmt.Sprintf("%s/quote/%s", site, ticker),
		PublishedAt: time.Now().Unix(),
	}}, nil
}

// dedupeNews drops repeated (title, link) pairs keeping first-seen order.
func dedupeNews(items []models.NewsItem) []models.NewsItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.Title + "\x00" + item.Link
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
