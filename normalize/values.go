package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vainnor/painel/models"
)

var dayFirstLayouts = []string{
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
}

var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/1/2",
}

// ParseDate reads a date cell. Slash, dash and dot separated dates are read
// day first; four digit leading years are read as ISO; bare numbers are
// spreadsheet serial dates.
func ParseDate(s string) (models.Date, bool) {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "", "nat", "nan", "none", "null":
		return models.Date{}, false
	}
	// September has 30 days; this typo shows up in the gate sheets.
	v = strings.ReplaceAll(v, "31/09", "30/09")

	layouts := dayFirstLayouts
	if len(v) >= 5 && isDigits(v[:4]) && (v[4] == '-' || v[4] == '/') {
		layouts = isoLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return models.DateOf(t), true
		}
	}

	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return models.DateOf(t.Round(time.Minute)), true
		}
	}
	return models.Date{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var groupedThousands = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// ParseNumber reads a numeric cell written with either decimal convention.
//
//	1.234,56 -> 1234.56   1,234.56 -> 1234.56   1.234 -> 1234
//	1,5      -> 1.5       12.5     -> 12.5      1,234,567 -> 1234567
func ParseNumber(s string) (float64, bool) {
	v := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if v == "" {
		return 0, false
	}

	dot, comma := strings.LastIndex(v, "."), strings.LastIndex(v, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case comma >= 0:
		if strings.Count(v, ",") > 1 {
			v = strings.ReplaceAll(v, ",", "")
		} else {
			v = strings.Replace(v, ",", ".", 1)
		}
	case dot >= 0:
		if groupedThousands.MatchString(v) {
			v = strings.ReplaceAll(v, ".", "")
		}
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MaxCount is the largest count a cell may hold. Larger values are treated
// as unreadable so that column sums cannot overflow.
const MaxCount = math.MaxInt32

// Int coerces a count cell: unreadable, negative or out of range values
// become 0.
func Int(s string) int {
	f, ok := ParseNumber(s)
	if !ok || f < 0 || f > MaxCount {
		return 0
	}
	return int(math.Round(f))
}
