package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/StockPilot/internal/models"
)

var csvHeader = []string{
	"Symbol", "Date", "Open", "High", "Low", "Close", "AdjClose", "Volume",
	"FetchedAt", // unix seconds, checked against the cache TTL
}

var symbolDirReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// CSVManager stores daily bars as one CSV file per symbol and date range:
// {base}/{SYMBOL}/{start}_{end}.csv
type CSVManager struct {
	basePath string
}

func NewCSVManager(basePath string) *CSVManager {
	return &CSVManager{basePath: basePath}
}

func (c *CSVManager) BasePath() string {
	return c.basePath
}

// BarsPath is where the bars of symbol between start and end are kept.
func (c *CSVManager) BarsPath(symbol string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s.csv", start.Format("20060102"), end.Format("20060102"))
	return filepath.Join(c.basePath, symbolDirReplacer.Replace(symbol), name)
}

// WriteBars replaces the file at BarsPath. The write goes through a temp file
// so readers never see a half-written range.
func (c *CSVManager) WriteBars(symbol string, start, end time.Time, bars []*models.MarketData, fetchedAt time.Time) error {
	path := c.BarsPath(symbol, start, end)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bars-*.csv")
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	stamp := strconv.FormatInt(fetchedAt.Unix(), 10)
	for _, bar := range bars {
		row := []string{
			bar.Symbol,
			bar.Date.Format(time.DateOnly),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.AdjClose.String(),
			strconv.FormatInt(bar.Volume, 10),
			stamp,
		}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadBars loads a file written by WriteBars and reports when its data was
// fetched. A missing file returns an error wrapping os.ErrNotExist.
func (c *CSVManager) ReadBars(symbol string, start, end time.Time) ([]*models.MarketData, time.Time, error) {
	file, err := os.Open(c.BarsPath(symbol, start, end))
	if err != nil {
		return nil, time.Time{}, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(csvHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, time.Time{}, fmt.Errorf("empty csv file")
	}

	var fetchedAt time.Time
	bars := make([]*models.MarketData, 0, len(records)-1)
	for i, rec := range records[1:] {
		bar, stamp, err := parseBarRow(rec)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		if i == 0 {
			fetchedAt = stamp
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		// header-only files still carry their age in the file mtime
		if info, err := file.Stat(); err == nil {
			fetchedAt = info.ModTime()
		}
	}
	return bars, fetchedAt, nil
}

func parseBarRow(rec []string) (*models.MarketData, time.Time, error) {
	date, err := time.Parse(time.DateOnly, rec[1])
	if err != nil {
		return nil, time.Time{}, err
	}
	var prices [5]decimal.Decimal
	for i := range prices {
		if prices[i], err = decimal.NewFromString(rec[2+i]); err != nil {
			return nil, time.Time{}, err
		}
	}
	volume, err := strconv.ParseInt(rec[7], 10, 64)
	if err != nil {
		return nil, time.Time{}, err
	}
	stamp, err := strconv.ParseInt(rec[8], 10, 64)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &models.MarketData{
		Symbol:   rec[0],
		Date:     date,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		AdjClose: prices[4],
		Volume:   volume,
	}, time.Unix(stamp, 0), nil
}

// CleanOldCSVFiles removes cached files not modified within maxAge and
// returns how many were deleted.
func (c *CSVManager) CleanOldCSVFiles(maxAge time.Duration) (int, error) {
	if _, err := os.Stat(c.basePath); os.IsNotExist(err) {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(c.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".csv") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if time.Since(info.ModTime()) > maxAge {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clean %s: %w", c.basePath, err)
	}
	return removed, nil
}
