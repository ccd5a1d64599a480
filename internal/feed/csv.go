// Package feed loads daily bar series into the resident dataset a run
// replays. CSV is the only on-disk format; tests build datasets
// directly with the helpers in memory.go.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbed/quantbed/internal/core"
)

// Column names accepted for the bar date. All other required columns
// go by their canonical names.
var dateColumns = []string{"date", "timestamp"}

var priceColumns = []string{"open", "high", "low", "close"}

// Timestamp formats tried in order. Intraday stamps are accepted and
// truncated to their calendar date.
var timeFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006/01/02",
	"2006/01/02 15:04:05",
}

// Loader reads CSV bar files, skipping rows it cannot parse. A nil
// logger is replaced with a nop.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a CSV bar loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadDir loads every .csv file in dir, deriving each symbol from the
// file name ("aapl.csv" becomes AAPL). When symbols are given, only
// matching files are loaded. Returns NO_DATA when nothing loads.
func (l *Loader) LoadDir(dir string, symbols ...string) (Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("reading data directory: %w", err))
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(s)] = true
	}

	ds := NewDataset()
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if len(wanted) > 0 && !wanted[symbol] {
			continue
		}

		bars, err := l.LoadFile(filepath.Join(dir, entry.Name()), symbol)
		if err != nil {
			return nil, err
		}
		ds.Add(symbol, bars)
	}

	if len(ds) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bar files loaded from %s", dir))
	}
	for _, s := range symbols {
		if _, ok := ds[strings.ToUpper(s)]; !ok {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bar file for symbol %s in %s", s, dir))
		}
	}
	return ds, nil
}

// LoadFile loads one instrument's bars from a CSV file. The header
// must carry open/high/low/close plus a date or timestamp column, in
// any order; a volume column is optional. Rows that fail to parse or
// violate the OHLC range are skipped with a warning. Bars come back
// sorted by date with duplicate dates collapsed to the last row read.
func (l *Loader) LoadFile(path, symbol string) ([]core.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("reading header of %s: %w", path, err))
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s: %w", path, err))
	}

	byDate := make(map[time.Time]core.Bar)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("reading %s line %d: %w", path, line+1, err))
		}
		line++

		bar, err := parseRecord(record, cols, symbol)
		if err != nil {
			l.logger.Warn("skipping bar row",
				zap.String("file", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		byDate[bar.Date] = bar
	}

	if len(byDate) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no valid bars in %s", path))
	}

	bars := make([]core.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	l.logger.Debug("loaded bars",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Time("first", bars[0].Date),
		zap.Time("last", bars[len(bars)-1].Date),
	)
	return bars, nil
}

// columnMap holds the resolved index of each field in a CSV record.
// volume is -1 when the file has no volume column.
type columnMap struct {
	date   int
	open   int
	high   int
	low    int
	close  int
	volume int
}

func mapColumns(header []string) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := columnMap{date: -1, volume: -1}
	for _, name := range dateColumns {
		if i, ok := index[name]; ok {
			cols.date = i
			break
		}
	}
	if cols.date < 0 {
		return cols, fmt.Errorf("header missing a date or timestamp column, got %v", header)
	}
	for _, name := range priceColumns {
		i, ok := index[name]
		if !ok {
			return cols, fmt.Errorf("header missing required column %q, got %v", name, header)
		}
		switch name {
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		}
	}
	if i, ok := index["volume"]; ok {
		cols.volume = i
	}
	return cols, nil
}

func parseRecord(record []string, cols columnMap, symbol string) (core.Bar, error) {
	get := func(i int) (string, error) {
		if i >= len(record) {
			return "", fmt.Errorf("record has %d fields, need index %d", len(record), i)
		}
		return strings.TrimSpace(record[i]), nil
	}

	raw, err := get(cols.date)
	if err != nil {
		return core.Bar{}, err
	}
	date, err := parseDate(raw)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Symbol: symbol, Date: date}
	for _, field := range []struct {
		idx  int
		dst  *decimal.Decimal
		name string
	}{
		{cols.open, &bar.Open, "open"},
		{cols.high, &bar.High, "high"},
		{cols.low, &bar.Low, "low"},
		{cols.close, &bar.Close, "close"},
	} {
		raw, err := get(field.idx)
		if err != nil {
			return core.Bar{}, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return core.Bar{}, fmt.Errorf("invalid %s price %q", field.name, raw)
		}
		*field.dst = v
	}

	if cols.volume >= 0 {
		raw, err := get(cols.volume)
		if err != nil {
			return core.Bar{}, err
		}
		if raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				return core.Bar{}, fmt.Errorf("invalid volume %q", raw)
			}
			bar.Volume = int64(v)
		}
	}

	if !bar.IsValid() {
		return core.Bar{}, fmt.Errorf("incoherent OHLC range O=%s H=%s L=%s C=%s",
			bar.Open, bar.High, bar.Low, bar.Close)
	}
	return bar, nil
}

// parseDate tries the accepted stamp formats and truncates the result
// to its calendar date in UTC, so bars from files with different stamp
// styles land on the same axis.
func parseDate(raw string) (time.Time, error) {
	for _, format := range timeFormats {
		t, err := time.Parse(format, raw)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
