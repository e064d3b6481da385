package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

// Columns with a fixed meaning; every other column is read as a metric.
const (
	colID         = "id"
	colRegion     = "region"
	colVertical   = "vertical"
	colCategory   = "category"
	colSegment    = "segment"
	colGrossValue = "gross_value"
)

// CSVSource loads merchants from a CSV file with a header row.
type CSVSource struct {
	path   string
	logger zerolog.Logger
}

// NewCSV constructs a CSV-backed source.
func NewCSV(path string, logger zerolog.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger.With().Str("component", "csv_dataset").Logger()}
}

// Load reads and validates the whole file.
func (s *CSVSource) Load(ctx context.Context) ([]governance.Merchant, error) {
	if s.path == "" {
		return nil, errors.New("dataset path not configured")
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	merchants, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	s.logger.Debug().Str("path", s.path).Int("merchants", len(merchants)).Msg("dataset loaded")
	return merchants, nil
}

// ParseCSV decodes merchant records. Empty metric cells are left out of the
// record so the engine reports them as missing instead of scoring a zero.
func ParseCSV(r io.Reader) ([]governance.Merchant, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == colCategory {
			key = colVertical
		}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[key] = i
	}
	for _, required := range []string{colID, colGrossValue} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var merchants []governance.Merchant
	seen := make(map[string]int)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		m, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if first, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("line %d: merchant %q already defined on line %d", line, m.ID, first)
		}
		seen[m.ID] = line
		merchants = append(merchants, m)
	}

	return merchants, nil
}

func parseRow(row []string, index map[string]int) (governance.Merchant, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	m := governance.Merchant{
		ID:       cell(colID),
		Region:   cell(colRegion),
		Vertical: cell(colVertical),
		Segment:  cell(colSegment),
		Metrics:  make(map[string]float64),
	}
	if m.ID == "" {
		return m, errors.New("empty merchant id")
	}

	gross, err := decimal.NewFromString(cell(colGrossValue))
	if err != nil {
		return m, fmt.Errorf("merchant %s: gross_value: %w", m.ID, err)
	}
	if gross.IsNegative() {
		return m, fmt.Errorf("merchant %s: gross_value cannot be negative", m.ID)
	}
	m.GrossValue = gross

	for col, i := range index {
		switch col {
		case colID, colRegion, colVertical, colSegment, colGrossValue:
			continue
		}
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return m, fmt.Errorf("merchant %s: metric %s: %w", m.ID, col, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return m, fmt.Errorf("merchant %s: metric %s must be a finite non-negative number, got %v", m.ID, col, v)
		}
		m.Metrics[col] = v
	}

	return m, nil
}

var _ Source = (*CSVSource)(nil)
