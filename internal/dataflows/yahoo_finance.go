package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockPilot/internal/models"
)

// YahooFinanceClient reads chart history and quotes through finance-go.
type YahooFinanceClient struct{}

func NewYahooFinanceClient() *YahooFinanceClient {
	return &YahooFinanceClient{}
}

func (yf *YahooFinanceClient) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	q, err := quote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: quote %s: %v", ErrUpstream, symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, symbol)
	}

	ts := time.Now()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0)
	}
	return &models.Quote{
		Symbol:    symbol,
		Name:      q.ShortName,
		Price:     decimal.NewFromFloat(q.RegularMarketPrice),
		Open:      decimal.NewFromFloat(q.RegularMarketOpen),
		High:      decimal.NewFromFloat(q.RegularMarketDayHigh),
		Low:       decimal.NewFromFloat(q.RegularMarketDayLow),
		Volume:    int64(q.RegularMarketVolume),
		Timestamp: ts,
	}, nil
}

func (yf *YahooFinanceClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*models.MarketData, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	result := make([]*models.MarketData, 0)
	for iter.Next() {
		bar := iter.Bar()
		result = append(result, &models.MarketData{
			Symbol:   symbol,
			Date:     time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: bar.AdjClose,
			Volume:   int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: history %s: %v", ErrUpstream, symbol, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no price history for %s", ErrDataUnavailable, symbol)
	}
	return SortAndDedupe(result), nil
}
