package dataflows

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/models"
)

// LongportClient serves daily candlesticks from the Longport quote API.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg *config.Config) (*LongportClient, error) {
	if cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{quoteCtx: quoteContext}, nil
}

func (lpc *LongportClient) GetSticksWithDay(ctx context.Context, symbol string, count int) ([]*quote.Candlestick, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	return lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
}

// History requests enough daily sticks to cover the range, then trims to it.
func (lpc *LongportClient) History(ctx context.Context, symbol string, start, end time.Time) ([]*models.MarketData, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		days = 1
	}
	if days > 1000 {
		days = 1000
	}

	sticks, err := lpc.GetSticksWithDay(ctx, symbol, days)
	if err != nil {
		return nil, fmt.Errorf("%w: longport candlesticks %s: %v", ErrUpstream, symbol, err)
	}

	result := make([]*models.MarketData, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil {
			continue
		}
		date := time.Unix(stick.Timestamp, 0).UTC()
		if date.Before(start) || date.After(end) {
			continue
		}
		result = append(result, stickToMarketData(symbol, stick))
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no price history for %s", ErrDataUnavailable, symbol)
	}
	return SortAndDedupe(result), nil
}

// Quote reports the latest daily stick; Longport static info supplies the name.
func (lpc *LongportClient) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	sticks, err := lpc.GetSticksWithDay(ctx, symbol, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: longport quote %s: %v", ErrUpstream, symbol, err)
	}
	if len(sticks) == 0 || sticks[len(sticks)-1] == nil {
		return nil, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, symbol)
	}
	bar := stickToMarketData(symbol, sticks[len(sticks)-1])

	q := &models.Quote{
		Symbol:    symbol,
		Price:     bar.Close,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Volume:    bar.Volume,
		Timestamp: bar.Date,
	}
	if infos, err := lpc.quoteCtx.StaticInfo(ctx, []string{symbol}); err == nil && len(infos) > 0 && infos[0] != nil {
		q.Name = infos[0].NameEn
	}
	return q, nil
}

func stickToMarketData(symbol string, stick *quote.Candlestick) *models.MarketData {
	open, _ := stick.Open.Float64()
	high, _ := stick.High.Float64()
	low, _ := stick.Low.Float64()
	closePrice, _ := stick.Close.Float64()
	return &models.MarketData{
		Symbol:   symbol,
		Date:     time.Unix(stick.Timestamp, 0).UTC(),
		Open:     decimal.NewFromFloat(open),
		High:     decimal.NewFromFloat(high),
		Low:      decimal.NewFromFloat(low),
		Close:    decimal.NewFromFloat(closePrice),
		AdjClose: decimal.NewFromFloat(closePrice),
		Volume:   stick.Volume,
	}
}
