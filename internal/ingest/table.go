package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Table is a raw delimited file: a header and string cells, nothing coerced.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the first header matching any of names,
// ignoring case, spaces and underscores, or -1.
func (t Table) Index(names ...string) int {
	for _, name := range names {
		want := normalizeHeader(name)
		for i, h := range t.Header {
			if normalizeHeader(h) == want {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "").Replace(s)
}

type Encoding string

const (
	Latin1 Encoding = "latin1"
	UTF8   Encoding = "utf-8"
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "latin1", "iso-8859-1", "":
		return Latin1, nil
	case "utf-8", "utf8":
		return UTF8, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", s)
	}
}

// ReadCSV decodes r in the given encoding. Ragged rows are kept as-is;
// deciding what a short row means belongs to the sanitizer.
func ReadCSV(r io.Reader, enc Encoding) (Table, error) {
	if enc == Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("empty file")
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := Table{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}
