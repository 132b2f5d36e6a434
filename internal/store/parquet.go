package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"stockcast/pkg/model"
)

// BarPoint is one daily bar in the parquet export
type BarPoint struct {
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, encoding=DELTA_BINARY_PACKED"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Open      float64 `parquet:"name=open, type=DOUBLE, encoding=PLAIN"`
	High      float64 `parquet:"name=high, type=DOUBLE, encoding=PLAIN"`
	Low       float64 `parquet:"name=low, type=DOUBLE, encoding=PLAIN"`
	Close     float64 `parquet:"name=close, type=DOUBLE, encoding=PLAIN"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE, encoding=PLAIN"`
}

// ExportBarsParquet writes the daily bars of symbol to TIME_SERIES.parquet
// with gzip compression and returns the file path.
func (s *Store) ExportBarsParquet(symbol string, bars []model.PriceBar) (string, error) {
	if err := os.MkdirAll(s.Dir(symbol), 0o755); err != nil {
		return "", fmt.Errorf("creating symbol directory: %w", err)
	}
	filename := s.path(symbol, ParquetFile)

	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(BarPoint), 4)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.PageSize = 8 * 1024

	sym := strings.ToUpper(symbol)
	for _, b := range bars {
		point := BarPoint{
			Symbol:    sym,
			Timestamp: b.Time.Unix(),
			Date:      b.Time.Format(model.DateLayout),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
		if err := pw.Write(point); err != nil {
			return "", fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return "", fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return filename, nil
}

// LoadBarsParquet reads back a parquet export
func (s *Store) LoadBarsParquet(symbol string) ([]BarPoint, error) {
	fr, err := local.NewLocalFileReader(s.path(symbol, ParquetFile))
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(BarPoint), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	points := make([]BarPoint, pr.GetNumRows())
	if err := pr.Read(&points); err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	return points, nil
}

func barsFromPoints(points []BarPoint) []model.PriceBar {
	bars := make([]model.PriceBar, len(points))
	for i, p := range points {
		bars[i] = model.PriceBar{
			Time:   time.Unix(p.Timestamp, 0).UTC(),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}
