// Package normalize coerces raw tables coming from uploads, forms and the
// stores into typed dataset rows.
//
// Column names are matched trimmed and upper-cased. Dates are read day-first,
// ISO, or as spreadsheet serial numbers; numeric cells accept locale
// formatted separators. Rows whose date cannot be read are dropped and
// accounted for in the Report.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vainnor/painel/models"
)

var ErrMissingColumn = errors.New("missing column")

// Report describes what a normalization pass kept and what it discarded.
type Report struct {
	Rows       int      `json:"rows"`
	Dropped    int      `json:"dropped"`
	VolumeLost float64  `json:"volume_lost"`
	Warnings   []string `json:"warnings,omitempty"`
}

type Result[T any] struct {
	Rows   []T
	Report Report
}

// Header trims and upper-cases column names.
func Header(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
	}
	return out
}

var aliases = map[string]string{
	"OPERACAO":             "OPERAÇÃO",
	"OPERAÇAO":             "OPERAÇÃO",
	"TOTAL TRANSPORTADORA": "TOTAL TRANSPORTADORAS",
	"OBSERVAÇÕES":          "OBS",
	"OBSERVACOES":          "OBS",
}

type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range Header(cols) {
		if canon, ok := aliases[c]; ok {
			c = canon
		}
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	return h
}

func (h header) has(name string) bool {
	_, ok := h[name]
	return ok
}

func (h header) cell(row []string, name string) string {
	i, ok := h[name]
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

func dropWarning(n int, column string, volume float64) string {
	return fmt.Sprintf("%d rows were removed because column %s holds invalid or empty dates; volume ignored in those rows: %.0f",
		n, column, volume)
}

// Flights normalizes a raw flight log table.
func Flights(t models.Table) (Result[models.Flight], error) {
	h := newHeader(t.Columns)
	if !h.has("DATA") {
		return Result[models.Flight]{}, fmt.Errorf("%w: Data", ErrMissingColumn)
	}

	var res Result[models.Flight]
	for _, row := range t.Rows {
		if blank(row) {
			continue
		}
		routes := Int(h.cell(row, "ROTAS"))
		flights := Int(h.cell(row, "VOOS"))
		date, ok := ParseDate(h.cell(row, "DATA"))
		if !ok {
			res.Report.Dropped++
			res.Report.VolumeLost += float64(routes + flights)
			continue
		}
		res.Rows = append(res.Rows, models.Flight{
			Date:     date,
			Operator: h.cell(row, "OPERADOR"),
			Type:     models.ParseFlightType(h.cell(row, "TIPO")),
			Routes:   routes,
			Flights:  flights,
			Notes:    h.cell(row, "OBS"),
		})
	}
	res.Report.Rows = len(res.Rows)
	if res.Report.Dropped > 0 {
		res.Report.Warnings = append(res.Report.Warnings, dropWarning(res.Report.Dropped, "Data", res.Report.VolumeLost))
	}
	return res, nil
}

// Logistics normalizes a raw gate audit table.
func Logistics(t models.Table) (Result[models.Logistics], error) {
	h := newHeader(t.Columns)
	if !h.has("DATA") {
		return Result[models.Logistics]{}, fmt.Errorf("%w: DATA", ErrMissingColumn)
	}

	var res Result[models.Logistics]
	for _, row := range t.Rows {
		if blank(row) {
			continue
		}
		released := Int(h.cell(row, "LIBERADOS"))
		held := Int(h.cell(row, "MALHA"))
		date, ok := ParseDate(h.cell(row, "DATA"))
		if !ok {
			res.Report.Dropped++
			res.Report.VolumeLost += float64(released + held)
			continue
		}
		res.Rows = append(res.Rows, models.Logistics{
			Date:          date,
			Carrier:       h.cell(row, "TRANSPORTADORA"),
			Operation:     models.ParseOperationType(h.cell(row, "OPERAÇÃO")),
			Released:      released,
			Held:          held,
			TotalCarriers: Int(h.cell(row, "TOTAL TRANSPORTADORAS")),
		})
	}
	res.Report.Rows = len(res.Rows)
	if res.Report.Dropped > 0 {
		res.Report.Warnings = append(res.Report.Warnings, dropWarning(res.Report.Dropped, "DATA", res.Report.VolumeLost))
	}
	return res, nil
}
