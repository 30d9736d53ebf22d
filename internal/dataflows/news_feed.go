package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/StockPilot/internal/models"
)

// ContentShape tells how a raw feed article carries its fields.
type ContentShape int

const (
	// ContentDirect: title and links are top-level keys of the article.
	ContentDirect ContentShape = iota
	// ContentNested: fields live under a "content" object.
	ContentNested
	// ContentSerialized: "content" is a JSON document encoded as a string.
	ContentSerialized
)

func (s ContentShape) String() string {
	switch s {
	case ContentNested:
		return "nested"
	case ContentSerialized:
		return "serialized"
	default:
		return "direct"
	}
}

// ArticleContent is the result of classifying one raw article.
type ArticleContent struct {
	Shape  ContentShape
	Fields map[string]any
	Raw    string
}

// DetectContentShape classifies a raw article once so extraction never has to
// probe types again.
func DetectContentShape(article map[string]any) ArticleContent {
	switch content := article["content"].(type) {
	case map[string]any:
		return ArticleContent{Shape: ContentNested, Fields: content}
	case string:
		return ArticleContent{Shape: ContentSerialized, Raw: content}
	default:
		return ArticleContent{Shape: ContentDirect, Fields: article}
	}
}

// Resolve returns the field map, decoding serialized content first.
func (c ArticleContent) Resolve() (map[string]any, error) {
	if c.Shape != ContentSerialized {
		return c.Fields, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(c.Raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: serialized content: %v", ErrParseFailure, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: serialized content is not an object", ErrParseFailure)
	}
	return fields, nil
}

// YahooFeedStrategy reads the structured news list of the Yahoo search API.
type YahooFeedStrategy struct {
	client *resty.Client
	now    func() time.Time
}

func NewYahooFeedStrategy(baseURL string, timeout time.Duration, userAgent string) *YahooFeedStrategy {
	return &YahooFeedStrategy{
		client: newHTTPClient(baseURL, timeout, userAgent),
		now:    time.Now,
	}
}

func (y *YahooFeedStrategy) Name() string { return "yahoo_feed" }

type yahooSearchResponse struct {
	News []map[string]any `json:"news"`
}

func (y *YahooFeedStrategy) Fetch(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	var payload yahooSearchResponse
	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           ticker,
			"newsCount":   "10",
			"quotesCount": "0",
		}).
		Get("/v1/finance/search")
	if err := checkResponse(resp, err, "yahoo news feed"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: yahoo news feed: %v", ErrParseFailure, err)
	}

	items := make([]models.NewsItem, 0, MaxNewsItems)
	for _, article := range payload.News {
		if len(items) == MaxNewsItems {
			break
		}
		item, err := y.extract(article)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (y *YahooFeedStrategy) extract(article map[string]any) (models.NewsItem, error) {
	fields, err := DetectContentShape(article).Resolve()
	if err != nil {
		return models.NewsItem{}, err
	}

	item := models.NewsItem{
		Title:       firstString(fields, "title"),
		Link:        articleLink(fields),
		Publisher:   articlePublisher(article, fields),
		PublishedAt: articleTime(article, fields),
	}
	if item.Title == "" {
		item.Title = "No title"
	}
	if item.Link == "" {
		item.Link = "#"
	}
	if item.Publisher == "" {
		item.Publisher = "Unknown source"
	}
	if item.PublishedAt == 0 {
		item.PublishedAt = y.now().Unix()
	}
	return item, nil
}

// articleLink prefers the click-through URL, then canonical, url and link.
func articleLink(fields map[string]any) string {
	for _, key := range []string{"clickThroughUrl", "canonicalUrl"} {
		if nested, ok := fields[key].(map[string]any); ok {
			if link := firstString(nested, "url"); link != "" {
				return link
			}
		}
	}
	return firstString(fields, "url", "link")
}

func articlePublisher(article, fields map[string]any) string {
	if p := firstString(article, "publisher"); p != "" {
		return p
	}
	if provider, ok := fields["provider"].(map[string]any); ok {
		if p := firstString(provider, "displayName"); p != "" {
			return p
		}
	}
	return firstString(fields, "publisher")
}

func articleTime(article, fields map[string]any) int64 {
	for _, m := range []map[string]any{article, fields} {
		if v, ok := m["providerPublishTime"].(float64); ok && v > 0 {
			return int64(v)
		}
	}
	if s := firstString(fields, "pubDate", "displayTime"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
