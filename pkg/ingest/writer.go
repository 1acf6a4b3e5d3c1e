package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// WriteFile writes t as .csv or .json, chosen by extension.
func WriteFile(path string, t *table.Table, delimiter rune) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".json" {
		return &gperrors.UnsupportedFormatError{Path: path, Extension: ext}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if ext == ".csv" {
		err = WriteCSV(w, t, delimiter)
	} else {
		err = WriteJSON(w, t)
	}
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes a header row followed by the cell texts. Missing cells are
// empty; list cells use the bracketed form.
func WriteCSV(w io.Writer, t *table.Table, delimiter rune) error {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	names := t.Columns()
	if err := cw.Write(names); err != nil {
		return err
	}
	cols := make([][]table.Cell, len(names))
	for i, n := range names {
		cols[i], _ = t.Column(n)
	}
	rec := make([]string, len(names))
	for row := 0; row < t.Len(); row++ {
		for i := range cols {
			rec[i] = cols[i][row].Text()
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes an array of row objects with keys in column order.
func WriteJSON(w io.Writer, t *table.Table) error {
	names := t.Columns()
	keys := make([][]byte, len(names))
	cols := make([][]table.Cell, len(names))
	for i, n := range names {
		k, err := json.Marshal(n)
		if err != nil {
			return err
		}
		keys[i] = k
		cols[i], _ = t.Column(n)
	}

	var buf bytes.Buffer
	buf.WriteString("[")
	for row := 0; row < t.Len(); row++ {
		if row > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for i := range cols {
			if i > 0 {
				buf.WriteString(", ")
			}
			v, err := json.Marshal(cols[i][row].Value())
			if err != nil {
				return fmt.Errorf("encoding %s row %d: %w", names[i], row, err)
			}
			buf.Write(keys[i])
			buf.WriteString(": ")
			buf.Write(v)
		}
		buf.WriteString("}")
	}
	if t.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	_, err := w.Write(buf.Bytes())
	return err
}
