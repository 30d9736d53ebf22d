package dataflows

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/StockPilot/internal/models"
)

// GoogleSearchStrategy parses the news vertical of a Google web search.
type GoogleSearchStrategy struct {
	client *resty.Client
}

func NewGoogleSearchStrategy(baseURL string, timeout time.Duration, userAgent string) *GoogleSearchStrategy {
	return &GoogleSearchStrategy{client: newHTTPClient(baseURL, timeout, userAgent)}
}

func (g *GoogleSearchStrategy) Name() string { return "google_search" }

func (g *GoogleSearchStrategy) Fetch(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":   ticker + " stock news",
			"tbm": "nws",
		}).
		Get("/search")
	if err := checkResponse(resp, err, "google news search"); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: google results: %v", ErrParseFailure, err)
	}
	return parseGoogleResults(doc), nil
}

func parseGoogleResults(doc *goquery.Document) []models.NewsItem {
	now := time.Now().Unix()
	var items []models.NewsItem

	doc.Find("div.SoaBEf").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("div.mCBkyc").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Find(`div[role="heading"]`).First().Text())
		}
		href, _ := s.Find("a").First().Attr("href")
		link := cleanGoogleURL(href)
		if title == "" || link == "" {
			return true
		}

		publisher := strings.TrimSpace(s.Find(".NUnG9d span").First().Text())
		if publisher == "" {
			publisher = "Google News"
		}

		items = append(items, models.NewsItem{
			Title:       title,
			Publisher:   publisher,
			Link:        link,
			PublishedAt: now,
		})
		return len(items) < MaxNewsItems
	})
	return dedupeNews(items)
}

// cleanGoogleURL unwraps /url?q=... and url=... redirects to the target.
func cleanGoogleURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/url?") {
		if u, err := url.Parse(href); err == nil {
			q := u.Query()
			for _, key := range []string{"q", "url"} {
				if target := q.Get(key); target != "" {
					return target
				}
			}
		}
	}
	if idx := strings.Index(href, "url="); idx != -1 {
		target := href[idx+len("url="):]
		if amp := strings.Index(target, "&"); amp != -1 {
			target = target[:amp]
		}
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
		return target
	}
	return href
}
