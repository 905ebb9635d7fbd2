// Package transfer converts uploaded spreadsheets and database files into raw
// tables, and renders tables back into downloadable files.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vainnor/painel/db"
	"github.com/vainnor/painel/models"
	"github.com/vainnor/painel/remote"
)

// SheetName is the worksheet written by xlsx exports.
const SheetName = "Relatorio"

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadUpload decodes an uploaded file by extension. Database files are read
// from the table named after schema, or their first table.
func ReadUpload(ctx context.Context, filename string, data []byte, schema models.Schema) (models.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return readXLSX(data)
	case ".csv":
		return remote.DecodeCSVSniff(data)
	case ".db", ".sqlite", ".sqlite3":
		t, _, err := db.ReadFile(ctx, data, schema.Table)
		return t, err
	}
	return models.Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
}

func readXLSX(data []byte) (models.Table, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return models.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return models.Table{}, fmt.Errorf("no worksheet found")
	}
	// Raw values keep date cells as serial numbers instead of locale text.
	rows, err := file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return models.Table{}, err
	}
	if len(rows) == 0 {
		return models.Table{}, fmt.Errorf("worksheet is empty")
	}
	return models.Table{Columns: rows[0], Rows: rows[1:]}, nil
}

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatDB   Format = "db"
)

// ParseFormat defaults to csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatDB:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func Export(ctx context.Context, format Format, schema models.Schema, t models.Table) (File, error) {
	name := schema.Table + "." + string(format)
	switch format {
	case FormatCSV:
		return File{Name: name, ContentType: "text/csv; charset=utf-8", Data: remote.EncodeCSV(t)}, nil
	case FormatXLSX:
		data, err := writeXLSX(schema, t)
		if err != nil {
			return File{}, err
		}
		return File{
			Name:        name,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	case FormatDB:
		data, err := db.SnapshotFile(ctx, schema, t)
		if err != nil {
			return File{}, err
		}
		return File{Name: name, ContentType: "application/vnd.sqlite3", Data: data}, nil
	}
	return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func writeXLSX(schema models.Schema, t models.Table) ([]byte, error) {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName(file.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}
	integer := make([]bool, len(t.Columns))
	for i, name := range t.Columns {
		for _, c := range schema.Columns {
			if c.Integer && strings.EqualFold(c.Name, name) {
				integer[i] = true
			}
		}
	}

	write := func(line int, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		return file.SetSheetRow(SheetName, cell, &values)
	}
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := write(1, header); err != nil {
		return nil, err
	}
	for r, row := range t.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
			if i < len(integer) && integer[i] {
				if n, err := strconv.Atoi(v); err == nil {
					values[i] = n
				}
			}
		}
		if err := write(r+2, values); err != nil {
			return nil, err
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
