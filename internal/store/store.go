// Package store persists pipeline artifacts under a per-symbol directory:
// raw and preprocessed downloads, merged tables and trained models.
package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stockcast/internal/alphavantage"
	"stockcast/internal/frame"
	"stockcast/internal/preprocess"
	"stockcast/internal/training"
	"stockcast/pkg/model"
)

// File names inside a symbol directory
const (
	DailyFile   = "TIME_SERIES.csv"
	ParquetFile = "TIME_SERIES.parquet"
)

// ErrNotFound is returned when an artifact has not been written yet
var ErrNotFound = errors.New("artifact not found")

// Store reads and writes artifacts below a root directory
type Store struct {
	root string
}

// New creates a store rooted at dir
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store directory
func (s *Store) Root() string { return s.root }

// Dir returns the directory of one symbol
func (s *Store) Dir(symbol string) string {
	return filepath.Join(s.root, strings.ToUpper(symbol))
}

// StatementFile returns the payload file name of a category
func StatementFile(c model.Category) (string, error) {
	info, err := c.Info()
	if err != nil {
		return "", err
	}
	return info.Function + ".json", nil
}

// MergedFile returns the merged table file name of a category
func MergedFile(c model.Category) string {
	return fmt.Sprintf("merged_data_%s_StockData.csv", c)
}

// ModelFile returns the model artifact file name of a category
func ModelFile(c model.Category) string {
	return fmt.Sprintf("%sModel.json", c)
}

func (s *Store) path(symbol, name string) string {
	return filepath.Join(s.Dir(symbol), name)
}

func (s *Store) write(symbol, name string, data []byte) error {
	if err := os.MkdirAll(s.Dir(symbol), 0o755); err != nil {
		return fmt.Errorf("creating symbol directory: %w", err)
	}
	if err := os.WriteFile(s.path(symbol, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(symbol, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(symbol, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", strings.ToUpper(symbol), name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// SaveDailyRaw stores the daily CSV as downloaded
func (s *Store) SaveDailyRaw(symbol string, data []byte) error {
	return s.write(symbol, DailyFile, data)
}

// SaveBars writes bars as the daily CSV
func (s *Store) SaveBars(symbol string, bars []model.PriceBar) error {
	var buf bytes.Buffer
	if err := alphavantage.WriteDaily(&buf, bars); err != nil {
		return fmt.Errorf("encoding daily bars: %w", err)
	}
	return s.write(symbol, DailyFile, buf.Bytes())
}

// LoadBars reads the daily CSV in ascending order. Without a CSV it falls
// back to the parquet export.
func (s *Store) LoadBars(symbol string) ([]model.PriceBar, error) {
	data, err := s.read(symbol, DailyFile)
	if errors.Is(err, ErrNotFound) {
		if _, statErr := os.Stat(s.path(symbol, ParquetFile)); statErr == nil {
			points, err := s.LoadBarsParquet(symbol)
			if err != nil {
				return nil, err
			}
			return barsFromPoints(points), nil
		}
	}
	if err != nil {
		return nil, err
	}
	return alphavantage.ParseDaily(bytes.NewReader(data))
}

// SaveStatementRaw stores a statement payload as downloaded
func (s *Store) SaveStatementRaw(symbol string, c model.Category, data []byte) error {
	name, err := StatementFile(c)
	if err != nil {
		return err
	}
	return s.write(symbol, name, data)
}

// SaveStatements replaces a statement payload with quarterly records only
func (s *Store) SaveStatements(symbol string, c model.Category, records []model.StatementRecord) error {
	name, err := StatementFile(c)
	if err != nil {
		return err
	}
	data, err := preprocess.Payload(strings.ToUpper(symbol), c, records)
	if err != nil {
		return fmt.Errorf("encoding %s statements: %w", c, err)
	}
	return s.write(symbol, name, data)
}

// LoadStatements reads the quarterly records of a category
func (s *Store) LoadStatements(symbol string, c model.Category) ([]model.StatementRecord, error) {
	name, err := StatementFile(c)
	if err != nil {
		return nil, err
	}
	data, err := s.read(symbol, name)
	if err != nil {
		return nil, err
	}
	return preprocess.QuarterlyOnly(data, c)
}

// SaveMerged writes a merged table as CSV with a header row
func (s *Store) SaveMerged(symbol string, c model.Category, t *frame.Table) error {
	var buf bytes.Buffer
	if err := WriteTable(&buf, t); err != nil {
		return fmt.Errorf("encoding merged %s table: %w", c, err)
	}
	return s.write(symbol, MergedFile(c), buf.Bytes())
}

// LoadMerged reads a merged table back. Column kinds are inferred from the
// values.
func (s *Store) LoadMerged(symbol string, c model.Category) (*frame.Table, error) {
	data, err := s.read(symbol, MergedFile(c))
	if err != nil {
		return nil, err
	}
	t, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding merged %s table: %w", c, err)
	}
	return t, nil
}

// WriteTable encodes a table as CSV; missing values are empty cells
func WriteTable(w io.Writer, t *frame.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	cols := t.Columns()
	record := make([]string, len(cols))
	for i := 0; i < t.Rows(); i++ {
		for j, c := range cols {
			record[j] = c.Format(i)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable decodes a CSV written by WriteTable
func ReadTable(r io.Reader) (*frame.Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty table file")
	}
	header, rows := records[0], records[1:]
	t := frame.New(len(rows))
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			raw[i] = rec[j]
		}
		if err := t.Add(frame.ColumnFromStrings(name, raw)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SaveModel writes a trained model artifact
func (s *Store) SaveModel(symbol string, a *training.Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s model: %w", a.Category, err)
	}
	return s.write(symbol, ModelFile(a.Category), data)
}

// LoadModel reads a trained model artifact
func (s *Store) LoadModel(symbol string, c model.Category) (*training.Artifact, error) {
	data, err := s.read(symbol, ModelFile(c))
	if err != nil {
		return nil, err
	}
	var a training.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding %s model: %w", c, err)
	}
	if a.Category != c {
		return nil, fmt.Errorf("%s holds a %s model", ModelFile(c), a.Category)
	}
	return &a, nil
}
