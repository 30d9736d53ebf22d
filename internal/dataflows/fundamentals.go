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

var quoteSummaryModules = []string{
	"price",
	"assetProfile",
	"financialData",
	"defaultKeyStatistics",
	"summaryDetail",
}

// FundamentalsClient fetches one quoteSummary record per call and reshapes it
// into models.FinancialMetrics.
type FundamentalsClient struct {
	client *resty.Client
}

func NewFundamentalsClient(baseURL string, timeout time.Duration, userAgent string) *FundamentalsClient {
	return &FundamentalsClient{client: newHTTPClient(baseURL, timeout, userAgent)}
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (f *FundamentalsClient) GetFinancialMetrics(ctx context.Context, ticker string) (*models.FinancialMetrics, error) {
	if err := ValidateSymbol(ticker); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetQueryParam("modules", strings.Join(quoteSummaryModules, ",")).
		Get("/v10/finance/quoteSummary/{ticker}")
	if err != nil {
		return nil, fmt.Errorf("%w: quoteSummary %s: %v", ErrUpstream, ticker, err)
	}

	var payload quoteSummaryResponse
	decodeErr := json.Unmarshal(resp.Body(), &payload)
	if decodeErr == nil && payload.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("%w: quoteSummary %s: %s", ErrUpstream, ticker, payload.QuoteSummary.Error.Description)
	}
	if err := checkResponse(resp, nil, "quoteSummary "+ticker); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: quoteSummary %s: %v", ErrParseFailure, ticker, decodeErr)
	}
	if len(payload.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: no fundamentals for %s", ErrDataUnavailable, ticker)
	}

	info := flattenModules(payload.QuoteSummary.Result[0])
	return buildFinancialMetrics(ticker, info), nil
}

// flattenModules merges the module objects into one key space. Earlier
// modules win on duplicate keys and {"raw": x, "fmt": ...} wrappers collapse to x.
func flattenModules(result map[string]json.RawMessage) map[string]any {
	info := make(map[string]any)
	for _, module := range quoteSummaryModules {
		raw, ok := result[module]
		if !ok {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		for key, value := range fields {
			if _, exists := info[key]; exists {
				continue
			}
			if v, ok := unwrapRaw(value); ok {
				info[key] = v
			}
		}
	}
	return info
}

func unwrapRaw(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case map[string]any:
		raw, ok := v["raw"]
		if !ok || raw == nil {
			return nil, false
		}
		return raw, true
	default:
		return v, true
	}
}

func buildFinancialMetrics(ticker string, info map[string]any) *models.FinancialMetrics {
	marketCapBillions := models.NA()
	if mc, ok := info["marketCap"].(float64); ok && mc != 0 {
		marketCapBillions = models.Number(round2(mc / 1e9))
	}

	revenueGrowth := metricOf(info, "revenueGrowth")
	if g, ok := revenueGrowth.Float(); ok {
		revenueGrowth = models.Number(round2(g * 100))
	}

	return &models.FinancialMetrics{
		Stock: ticker,
		CompanyInfo: models.CompanyInfo{
			Name:              metricOf(info, "longName"),
			Sector:            metricOf(info, "sector"),
			Industry:          metricOf(info, "industry"),
			MarketCap:         metricOf(info, "marketCap"),
			MarketCapBillions: marketCapBillions,
		},
		RevenueData: models.RevenueData{
			TotalRevenue:  metricOf(info, "totalRevenue"),
			RevenueGrowth: revenueGrowth,
		},
		ProfitabilityRatios: models.ProfitabilityRatios{
			GrossProfitMargin:     metricOf(info, "grossMargins"),
			OperatingProfitMargin: metricOf(info, "operatingMargins"),
			NetProfitMargin:       metricOf(info, "profitMargins"),
		},
		FinancialHealth: models.FinancialHealth{
			CurrentRatio: metricOf(info, "currentRatio"),
			QuickRatio:   metricOf(info, "quickRatio"),
			DebtToEquity: metricOf(info, "debtToEquity"),
		},
		MarketRatios: models.MarketRatios{
			PERatio:       metricOf(info, "trailingPE"),
			ForwardPE:     metricOf(info, "forwardPE"),
			PriceToBook:   metricOf(info, "priceToBook"),
			DividendYield: metricOf(info, "dividendYield"),
		},
	}
}

func metricOf(info map[string]any, key string) models.Metric {
	switch v := info[key].(type) {
	case float64:
		return models.Number(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return models.NA()
		}
		return models.Text(v)
	default:
		return models.NA()
	}
}
