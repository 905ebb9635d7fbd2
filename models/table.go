package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Table is the raw interchange form of a dataset: one header row plus string
// cells. CSV files, spreadsheets, embedded database files and both stores all
// read and write this shape.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column describes one stored column of a dataset.
type Column struct {
	Name    string
	Integer bool
}

// Schema binds a record type to its stored columns and locations.
type Schema struct {
	// Name is the dataset name used in URLs and metrics
	Name string
	// Table is the local embedded store table
	Table string
	// RemoteKey is the secrets key holding the remote file path
	RemoteKey string
	// DateLayout is the layout dates are written with
	DateLayout string
	Columns    []Column
}

func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Record is implemented by every row type stored in a dataset.
type Record interface {
	Day() Date
	Values() []string
}

// Encode renders typed rows into the schema's raw table.
func Encode[T Record](s Schema, rows []T) Table {
	t := Table{Columns: s.ColumnNames(), Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Values())
	}
	return t
}

// Key is the full-row identity used for de-duplication.
func Key[T Record](r T) string {
	return strings.Join(r.Values(), "\x1f")
}

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

const (
	ISODate      = "2006-01-02"
	DayFirstDate = "02/01/2006"
)

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) String() string { return d.Format(ISODate) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(ISODate))
}

// UnmarshalJSON accepts ISO and day-first dates.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	for _, layout := range []string{ISODate, DayFirstDate, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = DateOf(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}
