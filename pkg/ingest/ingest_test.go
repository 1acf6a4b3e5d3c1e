package ingest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

func TestReadCSV(t *testing.T) {
	input := "\ufefffirst_name;last_name;time1\nAna;Lee;Montag, Dienstag\nBob;;\n"

	tbl, err := ReadCSV(strings.NewReader(input), ';')
	require.NoError(t, err)

	assert.Equal(t, []string{"first_name", "last_name", "time1"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())

	c, err := tbl.Cell(0, "time1")
	require.NoError(t, err)
	assert.Equal(t, "Montag, Dienstag", c.Text())

	c, err = tbl.Cell(1, "last_name")
	require.NoError(t, err)
	assert.True(t, c.IsMissing())
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.Columns())
}

func TestReadTable_UnsupportedFormat(t *testing.T) {
	_, err := ReadTable("survey.txt", ',')
	require.Error(t, err)
	assert.True(t, gperrors.IsUnsupportedFormat(err))
}

func TestReadTable_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.CSV")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	tbl, err := ReadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
}

func TestReadTable_Windows1252(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.csv")
	// "Müller" and "Präferenz" as Windows-1252 bytes.
	data := []byte("last_name,note\nM\xfcller,Pr\xe4ferenz\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tbl, err := ReadTable(path, ',')
	require.NoError(t, err)
	names, err := tbl.Strings("last_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Müller"}, names)
}

func TestDecodeCharset(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		charset string
		want    string
		wantErr bool
	}{
		{name: "utf-8 passthrough", data: []byte("Müller"), charset: "UTF-8", want: "Müller"},
		{name: "empty charset", data: []byte("Ng"), charset: "", want: "Ng"},
		{name: "latin1", data: []byte("Jos\xe9"), charset: "ISO-8859-1", want: "José"},
		{name: "cp1252 euro", data: []byte("\x80"), charset: "cp1252", want: "€"},
		{name: "unknown", data: []byte("x"), charset: "ebcdic", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCharset(tt.data, tt.charset)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestReadTable_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"first_name", "last_name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", "Lee"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name", "last_name"}, tbl.Columns())
	names, err := tbl.Strings("last_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lee"}, names)
}

func prepared(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(2)
	tbl, err := tbl.WithColumns(
		[]string{"id", "english", "personal_preferences_ids"},
		[][]table.Cell{
			{table.Int(1), table.Int(2)},
			{table.Number(0.5), table.Missing()},
			{table.List(table.Int(2), table.Missing()), table.List()},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, prepared(t), ','))

	want := "id,english,personal_preferences_ids\n" +
		"1,0.5,\"[2,null]\"\n" +
		"2,,[]\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, prepared(t)))

	out := buf.String()
	assert.Less(t, strings.Index(out, `"id"`), strings.Index(out, `"english"`))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, rows[0]["id"])
	assert.Equal(t, []interface{}{2.0, nil}, rows[0]["personal_preferences_ids"])
	assert.Nil(t, rows[1]["english"])
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, table.New(0)))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "out", "prepared.csv")
	require.NoError(t, WriteFile(path, prepared(t), ','))
	back, err := ReadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())

	err = WriteFile(filepath.Join(dir, "prepared.parquet"), prepared(t), ',')
	assert.True(t, gperrors.IsUnsupportedFormat(err))
}
