// Package importer reads research sources from an xlsx workbook.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jonesrussell/north-cloud/research/internal/domain"
)

// Header names recognized on the first row of the first sheet. Only name and url are required.
const (
	colName        = "name"
	colURL         = "url"
	colType        = "type"
	colCategories  = "categories"
	colReliability = "reliability"
	colActive      = "active"

	headerRows         = 1
	defaultReliability = 0.5
)

var errMissingColumns = errors.New("workbook must have name and url columns")

// ImportError reports a rejected row. Row is the 1-based spreadsheet row.
type ImportError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// SourceRow is a valid source and the spreadsheet row it came from.
type SourceRow struct {
	Row    int
	Source domain.Source
}

// Parsed is the outcome of reading a workbook.
type Parsed struct {
	Sources []SourceRow
	Errors  []ImportError
}

// ParseExcel reads sources from r. Rows that fail validation are reported in
// Errors and do not stop parsing. Sources are normalized.
func ParseExcel(r io.Reader) (*Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return &Parsed{Sources: []SourceRow{}, Errors: []ImportError{}}, nil
	}

	cols := headerIndex(rows[0])
	if _, ok := cols[colName]; !ok {
		return nil, errMissingColumns
	}
	if _, ok := cols[colURL]; !ok {
		return nil, errMissingColumns
	}

	out := &Parsed{Sources: make([]SourceRow, 0, len(rows)-headerRows), Errors: []ImportError{}}
	for i, row := range rows[headerRows:] {
		rowNum := i + headerRows + 1
		if blank(row) {
			continue
		}
		src, rowErr := parseRow(row, cols)
		if rowErr != "" {
			out.Errors = append(out.Errors, ImportError{Row: rowNum, Error: rowErr})
			continue
		}
		out.Sources = append(out.Sources, SourceRow{Row: rowNum, Source: src})
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "reliability_score" {
			key = colReliability
		}
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, cols map[string]int) (domain.Source, string) {
	src := domain.Source{
		Name:             cell(row, cols, colName),
		URL:              cell(row, cols, colURL),
		Type:             domain.SourceType(strings.ToLower(cell(row, cols, colType))),
		Categories:       splitList(cell(row, cols, colCategories)),
		ReliabilityScore: defaultReliability,
		Active:           true,
	}

	if raw := cell(row, cols, colReliability); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return src, "reliability must be a number"
		}
		src.ReliabilityScore = score
	}
	if raw := cell(row, cols, colActive); raw != "" {
		active, err := parseBool(raw)
		if err != nil {
			return src, "active must be true or false"
		}
		src.Active = active
	}

	src.Normalize()
	if err := src.Validate(); err != nil {
		return src, strings.TrimPrefix(err.Error(), domain.ErrInvalid.Error()+": ")
	}
	return src, ""
}

func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(raw)
}
