// Package importer turns uploaded delimited text into shipment rows.
package importer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode reads an upload as text. UTF-16 input with a BOM (spreadsheet
// exports) is transcoded, and a UTF-8 BOM is stripped.
func Decode(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	if len(raw) >= 2 && (raw[0] == 0xFE && raw[1] == 0xFF || raw[0] == 0xFF && raw[1] == 0xFE) {
		decoder := unicode.BOMOverride(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
		text, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), decoder))
		if err != nil {
			return "", fmt.Errorf("failed to decode UTF-16 upload: %w", err)
		}
		return string(text), nil
	}

	return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})), nil
}

// ParseCSV splits text into records and cells. Quoted sections may contain
// delimiters and line breaks. Records end at LF, CR or CRLF outside quotes;
// blank records are dropped. Cells split on ',' or ';', are trimmed, and
// lose their quote characters.
func ParseCSV(text string) [][]string {
	var records []string
	var current strings.Builder
	inQuotes := false

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			records = append(records, current.String())
		}
		current.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			current.WriteByte(c)
		case (c == '\n' || c == '\r') && !inQuotes:
			flush()
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
		default:
			current.WriteByte(c)
		}
	}
	flush()

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, splitRecord(record))
	}
	return rows
}

func splitRecord(record string) []string {
	var row []string
	var cell strings.Builder
	inQuotes := false

	for i := 0; i < len(record); i++ {
		c := record[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case (c == ',' || c == ';') && !inQuotes:
			row = append(row, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(c)
		}
	}
	return append(row, strings.TrimSpace(cell.String()))
}
