// Package ingest reads survey exports into tables and writes prepared
// tables back out.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// DefaultDelimiter is the CSV field delimiter of survey exports.
const DefaultDelimiter = ','

const utf8BOM = "\ufeff"

// ReadTable loads a .csv or .xlsx file. The delimiter applies to CSV only.
// CSV files that are not valid UTF-8 are decoded as FallbackCharset.
func ReadTable(path string, delimiter rune) (*table.Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		if data, err = toUTF8(data); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return ReadCSV(bytes.NewReader(data), delimiter)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, &gperrors.UnsupportedFormatError{Path: path, Extension: ext}
	}
}

// ReadCSV parses CSV with a header row. Ragged records are allowed.
func ReadCSV(r io.Reader, delimiter rune) (*table.Table, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return fromRows(records)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(path string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no sheets", gperrors.ErrValidation, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*table.Table, error) {
	if len(rows) == 0 {
		return table.New(0), nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return table.FromRecords(header, rows[1:])
}
