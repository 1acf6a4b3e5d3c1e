package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// FallbackCharset is assumed for CSV exports that are not valid UTF-8.
// Spreadsheet tools on German-locale Windows save "CSV" as Windows-1252.
const FallbackCharset = "windows-1252"

// DecodeCharset converts data from the named single-byte charset to UTF-8.
// "utf-8" and "" return data unchanged.
func DecodeCharset(data []byte, charset string) ([]byte, error) {
	var decoder transform.Transformer
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return data, nil
	case "iso-8859-1", "latin1", "iso_8859-1":
		decoder = charmap.ISO8859_1.NewDecoder()
	case "iso-8859-15", "latin9":
		decoder = charmap.ISO8859_15.NewDecoder()
	case "windows-1252", "cp1252":
		decoder = charmap.Windows1252.NewDecoder()
	case "macintosh", "mac-roman":
		decoder = charmap.Macintosh.NewDecoder()
	default:
		return data, fmt.Errorf("unknown charset: %s", charset)
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return data, fmt.Errorf("charset decoding failed: %w", err)
	}
	return out, nil
}

// toUTF8 returns data as UTF-8, decoding with FallbackCharset when needed.
func toUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}
	return DecodeCharset(data, FallbackCharset)
}
