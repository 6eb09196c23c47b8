// Package category loads, normalizes and transforms the category dataset
// behind the pie chart page.
package category

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/kjstillabower/dataviz-dashboard/internal/models"
)

// utf8BOM is the byte-order mark spreadsheet exports put before the first header.
const utf8BOM = "\ufeff"

// DemoSource is the dataset source reported for the built-in rows.
const DemoSource = "demo"

// Canonical column names after alias resolution.
const (
	ColumnCategory = "Category"
	ColumnAmount   = "Amount"
)

// aliasTable lists, per canonical column, the accepted header names in
// priority order. Matching is case-insensitive on trimmed headers.
var aliasTable = []struct {
	canonical  string
	candidates []string
}{
	{ColumnCategory, []string{"category", "name", "label"}},
	{ColumnAmount, []string{"amount", "value", "count", "size"}},
}

var demoRows = []models.CategoryRow{
	{Category: "Satellite", Amount: 28},
	{Category: "Launch Vehicle", Amount: 22},
	{Category: "Ground Systems", Amount: 14},
	{Category: "SDA", Amount: 19},
	{Category: "R&D", Amount: 17},
}

// Demo returns the preset dataset used when the CSV file is absent.
func Demo() models.CategoryDataset {
	rows := make([]models.CategoryRow, len(demoRows))
	copy(rows, demoRows)
	return models.CategoryDataset{Source: DemoSource, Demo: true, Rows: rows}
}

// Load reads the CSV at path. A missing file yields the demo dataset; any
// other failure is returned as an error (*SchemaError, *EmptyResultError,
// or a wrapped I/O or parse error).
func Load(path string) (models.CategoryDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Demo(), nil
		}
		return models.CategoryDataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse normalizes delimited text with a header row read from r.
func Parse(r io.Reader, source string) (models.CategoryDataset, error) {
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return models.CategoryDataset{}, fmt.Errorf("parse %s: %w", source, err)
	}
	if len(records) == 0 {
		return models.CategoryDataset{}, fmt.Errorf("parse %s: no header row", source)
	}

	headers := records[0]
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	if err := padRecords(records); err != nil {
		return models.CategoryDataset{}, fmt.Errorf("parse %s: %w", source, err)
	}
	cols, ok := resolveColumns(headers)
	if !ok {
		return models.CategoryDataset{}, &SchemaError{Path: source, Found: headers}
	}
	if len(records) == 1 {
		return models.CategoryDataset{}, &EmptyResultError{Path: source}
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return models.CategoryDataset{}, fmt.Errorf("parse %s: %w", source, df.Err)
	}
	// gota may rename blank or duplicate headers, so look columns up by position.
	names := df.Names()
	categories := df.Col(names[cols[ColumnCategory]]).Records()
	amounts := df.Col(names[cols[ColumnAmount]]).Records()

	rows := make([]models.CategoryRow, 0, len(categories))
	for i := range categories {
		amount, ok := parseAmount(amounts[i])
		if !ok {
			continue
		}
		name := strings.TrimSpace(categories[i])
		if name == "" {
			continue
		}
		rows = append(rows, models.CategoryRow{Category: name, Amount: amount})
	}
	if len(rows) == 0 {
		return models.CategoryDataset{}, &EmptyResultError{Path: source}
	}
	return models.CategoryDataset{Source: source, Rows: rows}, nil
}

// padRecords fills short rows with blank cells up to the header width. Rows
// wider than the header are an error.
func padRecords(records [][]string) error {
	width := len(records[0])
	for i, rec := range records[1:] {
		switch {
		case len(rec) > width:
			return fmt.Errorf("record on line %d: %w", i+2, csv.ErrFieldCount)
		case len(rec) < width:
			padded := make([]string, width)
			copy(padded, rec)
			records[i+1] = padded
		}
	}
	return nil
}

// resolveColumns maps each canonical column to the index of the first header
// matching one of its aliases. ok is false if any canonical column has no match.
func resolveColumns(headers []string) (map[string]int, bool) {
	byLower := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := byLower[key]; !dup {
			byLower[key] = i
		}
	}

	out := make(map[string]int, len(aliasTable))
	for _, col := range aliasTable {
		for _, cand := range col.candidates {
			if i, ok := byLower[cand]; ok {
				out[col.canonical] = i
				break
			}
		}
		if _, ok := out[col.canonical]; !ok {
			return nil, false
		}
	}
	return out, true
}

// parseAmount coerces a cell to a finite number. Blank, NaN and non-numeric
// cells count as missing.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
