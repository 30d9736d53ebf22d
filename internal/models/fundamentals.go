package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const NotAvailable = "N/A"

// Metric is a single fundamentals field. The zero value is "N/A".
type Metric struct {
	num *float64
	str *string
}

func NA() Metric { return Metric{} }

func Number(v float64) Metric { return Metric{num: &v} }

func Text(s string) Metric { return Metric{str: &s} }

func (m Metric) Available() bool {
	return m.num != nil || m.str != nil
}

func (m Metric) Float() (float64, bool) {
	if m.num == nil {
		return 0, false
	}
	return *m.num, true
}

func (m Metric) String() string {
	switch {
	case m.num != nil:
		return strconv.FormatFloat(*m.num, 'f', -1, 64)
	case m.str != nil:
		return *m.str
	default:
		return NotAvailable
	}
}

func (m Metric) MarshalJSON() ([]byte, error) {
	switch {
	case m.num != nil:
		return json.Marshal(*m.num)
	case m.str != nil:
		return json.Marshal(*m.str)
	default:
		return json.Marshal(NotAvailable)
	}
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*m = NA()
	case float64:
		*m = Number(v)
	case string:
		if v == NotAvailable {
			*m = NA()
		} else {
			*m = Text(v)
		}
	default:
		return fmt.Errorf("unsupported metric value %s", string(data))
	}
	return nil
}

type CompanyInfo struct {
	Name              Metric `json:"name"`
	Sector            Metric `json:"sector"`
	Industry          Metric `json:"industry"`
	MarketCap         Metric `json:"market_cap"`
	MarketCapBillions Metric `json:"market_cap_billions"`
}

type RevenueData struct {
	TotalRevenue  Metric `json:"total_revenue"`
	RevenueGrowth Metric `json:"revenue_growth"`
}

type ProfitabilityRatios struct {
	GrossProfitMargin     Metric `json:"gross_profit_margin"`
	OperatingProfitMargin Metric `json:"operating_profit_margin"`
	NetProfitMargin       Metric `json:"net_profit_margin"`
}

type FinancialHealth struct {
	CurrentRatio Metric `json:"current_ratio"`
	QuickRatio   Metric `json:"quick_ratio"`
	DebtToEquity Metric `json:"debt_to_equity"`
}

type MarketRatios struct {
	PERatio       Metric `json:"pe_ratio"`
	ForwardPE     Metric `json:"forward_pe"`
	PriceToBook   Metric `json:"price_to_book"`
	DividendYield Metric `json:"dividend_yield"`
}

type FinancialMetrics struct {
	Stock               string              `json:"stock"`
	CompanyInfo         CompanyInfo         `json:"company_info"`
	RevenueData         RevenueData         `json:"revenue_data"`
	ProfitabilityRatios ProfitabilityRatios `json:"profitability_ratios"`
	FinancialHealth     FinancialHealth     `json:"financial_health"`
	MarketRatios        MarketRatios        `json:"market_ratios"`
}

// AvailableCount reports how many leaf fields carry data.
func (f *FinancialMetrics) AvailableCount() int {
	leaves := []Metric{
		f.CompanyInfo.Name, f.CompanyInfo.Sector, f.CompanyInfo.Industry,
		f.CompanyInfo.MarketCap, f.CompanyInfo.MarketCapBillions,
		f.RevenueData.TotalRevenue, f.RevenueData.RevenueGrowth,
		f.ProfitabilityRatios.GrossProfitMargin, f.ProfitabilityRatios.OperatingProfitMargin,
		f.ProfitabilityRatios.NetProfitMargin,
		f.FinancialHealth.CurrentRatio, f.FinancialHealth.QuickRatio, f.FinancialHealth.DebtToEquity,
		f.MarketRatios.PERatio, f.MarketRatios.ForwardPE, f.MarketRatios.PriceToBook,
		f.MarketRatios.DividendYield,
	}
	n := 0
	for _, m := range leaves {
		if m.Available() {
			n++
		}
	}
	return n
}
