package dataflows

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyike/StockPilot/internal/models"
)

// ValidateSymbol only rejects empty tickers; exchanges decide the rest.
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	return nil
}

func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// SaveDataToFile saves structured data to a JSON file
func SaveDataToFile(data interface{}, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, jsonData, 0o644)
}

// SortAndDedupe orders bars by date ascending and keeps the last bar seen for
// each calendar day.
func SortAndDedupe(series []*models.MarketData) []*models.MarketData {
	byDay := make(map[string]*models.MarketData, len(series))
	for _, bar := range series {
		if bar == nil {
			continue
		}
		byDay[bar.Date.Format(time.DateOnly)] = bar
	}

	out := make([]*models.MarketData, 0, len(byDay))
	for _, bar := range byDay {
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
