package dataflows

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"

	"github.com/dyike/StockPilot/internal/logger"
	"github.com/dyike/StockPilot/internal/models"
)

const (
	yahooHeadlineSelector = `div.Ov\(h\)`
	yahooNewsLinkSelector = `a[href*="/news/"]`
	minHeadlineLength     = 15
)

// YahooPageStrategy scrapes the public quote news page.
type YahooPageStrategy struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
}

func NewYahooPageStrategy(baseURL string, timeout time.Duration, userAgent string) *YahooPageStrategy {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &YahooPageStrategy{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		userAgent: userAgent,
	}
}

func (y *YahooPageStrategy) Name() string { return "yahoo_page" }

func (y *YahooPageStrategy) Fetch(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var headlines, generic []models.NewsItem
	now := time.Now().Unix()

	c := colly.NewCollector(
		colly.UserAgent(y.userAgent),
		colly.MaxDepth(1),
	)
	if y.timeout > 0 {
		c.SetRequestTimeout(y.timeout)
	}

	c.OnHTML(yahooHeadlineSelector, func(e *colly.HTMLElement) {
		a := e.DOM.Find("a").First()
		title := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if title == "" || href == "" {
			return
		}
		link := e.Request.AbsoluteURL(href)
		if link == "" {
			return
		}
		headlines = append(headlines, models.NewsItem{
			Title: title, Publisher: "Yahoo Finance", Link: link, PublishedAt: now,
		})
	})

	c.OnHTML(yahooNewsLinkSelector, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.Text)
		if utf8.RuneCountInString(title) <= minHeadlineLength {
			return
		}
		href := e.Attr("href")
		link := e.Request.AbsoluteURL(href)
		if href == "" || link == "" {
			return
		}
		generic = append(generic, models.NewsItem{
			Title: title, Publisher: "Yahoo Finance", Link: link, PublishedAt: now,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Debug(ctx, "yahoo news page error", "status", r.StatusCode, "error", err)
	})

	pageURL := fmt.Sprintf("%s/quote/%s/news", y.baseURL, url.PathEscape(ticker))
	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("%w: visit %s: %v", ErrUpstream, pageURL, err)
	}
	c.Wait()

	items := headlines
	if len(items) == 0 {
		items = generic
	}
	items = dedupeNews(items)
	if len(items) > MaxNewsItems {
		items = items[:MaxNewsItems]
	}
	return items, nil
}
