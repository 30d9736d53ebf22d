package dataflows

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/StockPilot/internal/models"
)

// TaiwanNewsStrategy searches tw.news.yahoo.com for a stock code such as
// "2330.TW". It is not part of the default chain.
type TaiwanNewsStrategy struct {
	client  *resty.Client
	baseURL string
}

func NewTaiwanNewsStrategy(baseURL string, timeout time.Duration, userAgent string) *TaiwanNewsStrategy {
	return &TaiwanNewsStrategy{
		client:  newHTTPClient(baseURL, timeout, userAgent),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *TaiwanNewsStrategy) Name() string { return "yahoo_tw" }

func (s *TaiwanNewsStrategy) Fetch(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("p", ticker).
		Get("/search")
	if err := checkResponse(resp, err, "taiwan news search"); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: taiwan news page: %v", ErrParseFailure, err)
	}

	now := time.Now().Unix()
	seen := make(map[string]bool)
	var items []models.NewsItem
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "/") {
			return true
		}
		link := s.baseURL + href
		title := strings.TrimSpace(a.Text())
		if title == "" || seen[link] || !strings.Contains(link, "news") {
			return true
		}
		seen[link] = true
		items = append(items, models.NewsItem{
			Title:       title,
			Publisher:   "Yahoo News TW",
			Link:        link,
			PublishedAt: now,
		})
		return len(items) < MaxNewsItems
	})
	return items, nil
}
