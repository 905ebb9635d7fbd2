package remote

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/vainnor/painel/models"
)

var errEmptyFile = errors.New("empty csv file")

// DecodeCSV parses a comma separated file whose first record is the header.
func DecodeCSV(data []byte) (models.Table, error) {
	return decodeCSV(data, ',')
}

func decodeCSV(data []byte, sep rune) (models.Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return models.Table{}, errEmptyFile
	}
	if err != nil {
		return models.Table{}, fmt.Errorf("read csv header: %w", err)
	}
	t := models.Table{Columns: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Table{}, fmt.Errorf("read csv: %w", err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// DecodeCSVSniff tries a semicolon separator first and falls back to commas
// when that yields fewer than two columns.
func DecodeCSVSniff(data []byte) (models.Table, error) {
	t, err := decodeCSV(data, ';')
	if err == nil && len(t.Columns) >= 2 {
		return t, nil
	}
	return decodeCSV(data, ',')
}

// EncodeCSV renders a table with a header line and LF line endings.
func EncodeCSV(t models.Table) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(t.Columns)
	for _, row := range t.Rows {
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}
