package views

import (
	"sort"
	"time"

	"github.com/vainnor/painel/models"
)

const (
	DefaultGoal = 225
	MinGoal     = 50
	MaxGoal     = 2000
)

// FlightFilter selects the rows a flights dashboard is built from. A nil
// Operators slice selects every operator; an empty one selects none. Zero
// dates take their defaults relative to the current day.
type FlightFilter struct {
	Operators []string
	// Daily bounds the per-operator production and ranking, default last 7 days
	Daily Period
	// Monthly bounds the monthly aggregate, default last 90 days
	Monthly Period
	// Year restricts the general totals; 0 means every year
	Year int
	Goal int
}

type FlightKPI struct {
	Flights   int `json:"flights"`
	Routes    int `json:"routes"`
	Operators int `json:"operators"`
}

type OperatorTotals struct {
	Operator string `json:"operator"`
	Routes   int    `json:"routes"`
	Flights  int    `json:"flights"`
}

type MonthlyTotals struct {
	Month string `json:"month"`
	OperatorTotals
}

type RankEntry struct {
	Position int    `json:"position"`
	Medal    string `json:"medal,omitempty"`
	Operator string `json:"operator"`
	Flights  int    `json:"flights"`
}

type GoalProgress struct {
	Operator string  `json:"operator"`
	Flights  int     `json:"flights"`
	Progress float64 `json:"progress"`
}

type FlightGoal struct {
	Target   int            `json:"target"`
	Progress []GoalProgress `json:"progress"`
}

type FlightDashboard struct {
	Operators  []string         `json:"operators"`
	Warnings   []string         `json:"warnings,omitempty"`
	KPI        FlightKPI        `json:"kpi"`
	Daily      []OperatorTotals `json:"daily"`
	DailyRange Period           `json:"daily_range"`
	Ranking    []RankEntry      `json:"ranking"`
	Goal       FlightGoal       `json:"goal"`
	Projection int              `json:"projection"`
	Monthly    []MonthlyTotals  `json:"monthly"`
	Years      []int            `json:"years"`
	General    []OperatorTotals `json:"general"`
	Rows       []models.Flight  `json:"rows"`
}

var medals = []string{"🥇", "🥈", "🥉"}

// ClampGoal bounds a monthly goal, using the default for 0.
func ClampGoal(goal int) int {
	switch {
	case goal == 0:
		return DefaultGoal
	case goal < MinGoal:
		return MinGoal
	case goal > MaxGoal:
		return MaxGoal
	}
	return goal
}

// Flights builds the flights dashboard as of now.
func Flights(rows []models.Flight, f FlightFilter, now time.Time) FlightDashboard {
	day := today(now)
	if f.Daily.From.IsZero() {
		f.Daily.From = addDays(day, -7)
	}
	if f.Daily.To.IsZero() {
		f.Daily.To = day
	}
	if f.Monthly.From.IsZero() {
		f.Monthly.From = addDays(day, -90)
	}
	if f.Monthly.To.IsZero() {
		f.Monthly.To = day
	}

	d := FlightDashboard{
		Operators:  sortedStrings(rows, func(r models.Flight) string { return r.Operator }),
		DailyRange: f.Daily,
		Goal:       FlightGoal{Target: ClampGoal(f.Goal), Progress: []GoalProgress{}},
	}

	var filtered []models.Flight
	if f.Operators != nil && len(f.Operators) == 0 {
		d.Warnings = append(d.Warnings, "no operator selected; the table is empty")
	} else {
		ops := newSet(f.Operators)
		for _, r := range rows {
			if ops.match(r.Operator) {
				filtered = append(filtered, r)
			}
		}
	}
	d.Rows = filtered
	if d.Rows == nil {
		d.Rows = []models.Flight{}
	}

	for _, r := range filtered {
		d.KPI.Flights += r.Flights
		d.KPI.Routes += r.Routes
	}
	d.KPI.Operators = len(distinct(filtered, func(r models.Flight) string { return r.Operator }))

	d.Daily = byOperator(filtered, func(r models.Flight) bool { return f.Daily.Contains(r.Date) })
	d.Ranking = rank(d.Daily, 5)

	var monthFlights int
	current := func(r models.Flight) bool {
		return r.Date.Year() == day.Year() && r.Date.Month() == day.Month()
	}
	for _, t := range byOperator(filtered, current) {
		monthFlights += t.Flights
		progress := float64(t.Flights) / float64(d.Goal.Target)
		if progress > 1 {
			progress = 1
		}
		d.Goal.Progress = append(d.Goal.Progress, GoalProgress{Operator: t.Operator, Flights: t.Flights, Progress: progress})
	}
	d.Projection = int(float64(monthFlights) / float64(max(day.Day(), 1)) * 30)

	d.Monthly = byMonth(filtered, f.Monthly)
	d.Years = yearsDesc(filtered)
	d.General = byOperator(filtered, func(r models.Flight) bool { return f.Year == 0 || r.Date.Year() == f.Year })
	return d
}

// byOperator sums the rows accepted by keep, sorted by operator.
func byOperator(rows []models.Flight, keep func(models.Flight) bool) []OperatorTotals {
	idx := make(map[string]int)
	out := []OperatorTotals{}
	for _, r := range rows {
		if !keep(r) {
			continue
		}
		i, ok := idx[r.Operator]
		if !ok {
			i = len(out)
			idx[r.Operator] = i
			out = append(out, OperatorTotals{Operator: r.Operator})
		}
		out[i].Routes += r.Routes
		out[i].Flights += r.Flights
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operator < out[j].Operator })
	return out
}

func rank(totals []OperatorTotals, n int) []RankEntry {
	sorted := append([]OperatorTotals(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Flights > sorted[j].Flights })
	out := []RankEntry{}
	for i, t := range sorted {
		if i == n {
			break
		}
		e := RankEntry{Position: i + 1, Operator: t.Operator, Flights: t.Flights}
		if i < len(medals) {
			e.Medal = medals[i]
		}
		out = append(out, e)
	}
	return out
}

func byMonth(rows []models.Flight, p Period) []MonthlyTotals {
	type key struct{ month, operator string }
	idx := make(map[key]int)
	out := []MonthlyTotals{}
	for _, r := range rows {
		if !p.Contains(r.Date) {
			continue
		}
		k := key{monthKey(r.Date), r.Operator}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, MonthlyTotals{Month: k.month, OperatorTotals: OperatorTotals{Operator: r.Operator}})
		}
		out[i].Routes += r.Routes
		out[i].Flights += r.Flights
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Operator < out[j].Operator
	})
	return out
}
