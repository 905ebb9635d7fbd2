package views

import (
	"sort"
	"time"

	"github.com/vainnor/painel/models"
)

// LogisticsFilter selects the rows a logistics dashboard is built from. Nil
// slices and zero dates select everything in the dataset.
type LogisticsFilter struct {
	Years      []int
	Period     Period
	Operations []models.OperationType
	Carriers   []string
	// Months picks the YYYY-MM months of the monthly tab, default the last three
	Months []string
	// Day switches the daily tab from the latest week to a single day
	Day models.Date
}

// Metric is a KPI and its change against the previous period.
type Metric struct {
	Value float64 `json:"value"`
	Delta float64 `json:"delta"`
}

type LogisticsKPI struct {
	Total     Metric `json:"total"`
	Released  Metric `json:"released"`
	Held      Metric `json:"held"`
	Retention Metric `json:"retention"`
}

type Funnel struct {
	Total    int `json:"total"`
	Released int `json:"released"`
	Held     int `json:"held"`
}

type CarrierValue struct {
	Carrier string `json:"carrier"`
	Value   int    `json:"value"`
}

type HeatCell struct {
	Weekday string  `json:"weekday"`
	Carrier string  `json:"carrier"`
	Rate    float64 `json:"rate"`
}

// CarrierPeriod aggregates one carrier over one day, month or year.
type CarrierPeriod struct {
	Period   string  `json:"period"`
	Carrier  string  `json:"carrier"`
	Released int     `json:"released"`
	Held     int     `json:"held"`
	Rate     float64 `json:"rate"`
}

type Share struct {
	Name     string `json:"name"`
	Released int    `json:"released"`
}

type ScatterPoint struct {
	Carrier  string  `json:"carrier"`
	Released int     `json:"released"`
	Held     int     `json:"held"`
	Total    int     `json:"total"`
	Rate     float64 `json:"rate"`
}

type Scatter struct {
	Points []ScatterPoint `json:"points"`
	Mean   float64        `json:"mean"`
}

// LogisticsRow is a table row with its computed totals.
type LogisticsRow struct {
	models.Logistics
	GrandTotal int     `json:"total_geral"`
	HeldPct    float64 `json:"pct_malha"`
}

type LogisticsOptions struct {
	Years      []int                  `json:"years"`
	Operations []models.OperationType `json:"operations"`
	Carriers   []string               `json:"carriers"`
	Range      Period                 `json:"range"`
}

type LogisticsDashboard struct {
	Options        LogisticsOptions `json:"options"`
	Period         Period           `json:"period"`
	Years          []int            `json:"years"`
	KPI            LogisticsKPI     `json:"kpi"`
	RankByReleased []CarrierValue   `json:"rank_by_released"`
	RankByHeld     []CarrierValue   `json:"rank_by_held"`
	Funnel         Funnel           `json:"funnel"`
	Heatmap        []HeatCell       `json:"heatmap"`
	Overview       []CarrierPeriod  `json:"overview"`
	OverviewRange  Period           `json:"overview_range"`
	Daily          []CarrierPeriod  `json:"daily"`
	DailyRange     Period           `json:"daily_range"`
	Months         []string         `json:"months"`
	SelectedMonths []string         `json:"selected_months"`
	Monthly        []CarrierPeriod  `json:"monthly"`
	Yearly         []CarrierPeriod  `json:"yearly"`
	ByOperation    []Share          `json:"by_operation"`
	ByCarrier      []Share          `json:"by_carrier"`
	Scatter        Scatter          `json:"scatter"`
	Rows           []LogisticsRow   `json:"rows"`
}

// Logistics builds the gate audit dashboard. Default periods derive from the
// dataset's own dates.
func Logistics(rows []models.Logistics, f LogisticsFilter) LogisticsDashboard {
	d := LogisticsDashboard{Options: options(rows)}
	if f.Period.From.IsZero() {
		f.Period.From = d.Options.Range.From
	}
	if f.Period.To.IsZero() {
		f.Period.To = d.Options.Range.To
	}
	d.Period = f.Period

	years := newSet(f.Years)
	ops := newSet(f.Operations)
	carriers := newSet(f.Carriers)
	category := func(r models.Logistics) bool { return ops.match(r.Operation) && carriers.match(r.Carrier) }

	var filtered, previous []models.Logistics
	prev := Period{From: addDays(f.Period.From, -f.Period.Days()), To: addDays(f.Period.From, -1)}
	for _, r := range rows {
		if !category(r) {
			continue
		}
		if years.match(r.Date.Year()) && f.Period.Contains(r.Date) {
			filtered = append(filtered, r)
		}
		if prev.Contains(r.Date) {
			previous = append(previous, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].Date.Equal(filtered[j].Date.Time) {
			return filtered[i].Date.Before(filtered[j].Date.Time)
		}
		return filtered[i].Carrier < filtered[j].Carrier
	})

	d.Years = yearsAsc(filtered)
	cur, old := totals(filtered), totals(previous)
	d.KPI = LogisticsKPI{
		Total:     metric(float64(cur.vehicles), float64(old.vehicles)),
		Released:  metric(float64(cur.released), float64(old.released)),
		Held:      metric(float64(cur.held), float64(old.held)),
		Retention: metric(cur.retention(), old.retention()),
	}
	d.Funnel = Funnel{Total: cur.vehicles, Released: cur.released, Held: cur.held}
	d.RankByReleased = rankCarriers(filtered, func(r models.Logistics) int { return r.Released })
	d.RankByHeld = rankCarriers(filtered, func(r models.Logistics) int { return r.Held })
	d.Heatmap = heatmap(filtered)

	dayKey := func(r models.Logistics) string { return r.Date.String() }
	if len(filtered) > 0 {
		last := filtered[len(filtered)-1].Date
		first := filtered[0].Date
		d.OverviewRange = Period{From: addDays(last, -4), To: last}
		if d.OverviewRange.From.Before(first.Time) {
			d.OverviewRange.From = first
		}
		d.Overview = aggregate(filtered, func(r models.Logistics) bool { return d.OverviewRange.Contains(r.Date) }, dayKey)

		// The latest week runs from the Monday before the last date.
		offset := (int(last.Weekday()) + 6) % 7
		d.DailyRange = Period{From: addDays(last, -offset), To: last}
	}
	if !f.Day.IsZero() {
		// A specific day ignores the year and period filters.
		d.DailyRange = Period{From: f.Day, To: f.Day}
		d.Daily = aggregate(rows, func(r models.Logistics) bool { return category(r) && r.Date.Equal(f.Day.Time) }, dayKey)
	} else {
		d.Daily = aggregate(filtered, func(r models.Logistics) bool { return d.DailyRange.Contains(r.Date) }, dayKey)
	}

	d.Months = sortedStrings(filtered, func(r models.Logistics) string { return monthKey(r.Date) })
	d.SelectedMonths = f.Months
	if len(d.SelectedMonths) == 0 {
		d.SelectedMonths = d.Months[max(len(d.Months)-3, 0):]
	}
	months := newSet(d.SelectedMonths)
	d.Monthly = aggregate(filtered, func(r models.Logistics) bool { return months.match(monthKey(r.Date)) },
		func(r models.Logistics) string { return monthKey(r.Date) })
	d.Yearly = aggregate(filtered, func(models.Logistics) bool { return true },
		func(r models.Logistics) string { return r.Date.Format("2006") })

	d.ByOperation = shares(filtered, func(r models.Logistics) string { return string(r.Operation) })
	d.ByCarrier = shares(filtered, func(r models.Logistics) string { return r.Carrier })
	d.Scatter = scatter(filtered, cur.retention())

	d.Rows = make([]LogisticsRow, 0, len(filtered))
	for _, r := range filtered {
		d.Rows = append(d.Rows, LogisticsRow{Logistics: r, GrandTotal: r.Total(), HeldPct: models.RetentionPercent(r.Released, r.Held)})
	}
	return d
}

func options(rows []models.Logistics) LogisticsOptions {
	o := LogisticsOptions{
		Years:      yearsDesc(rows),
		Operations: distinct(rows, func(r models.Logistics) models.OperationType { return r.Operation }),
		Carriers:   sortedStrings(rows, func(r models.Logistics) string { return r.Carrier }),
	}
	for i, r := range rows {
		if i == 0 || r.Date.Before(o.Range.From.Time) {
			o.Range.From = r.Date
		}
		if i == 0 || r.Date.After(o.Range.To.Time) {
			o.Range.To = r.Date
		}
	}
	sort.Slice(o.Operations, func(i, j int) bool { return o.Operations[i] < o.Operations[j] })
	return o
}

func yearsAsc(rows []models.Logistics) []int {
	years := yearsDesc(rows)
	sort.Ints(years)
	return years
}

type sums struct {
	released, held, carriers, vehicles int
}

// totals sums a slice, counting vehicles from the carriers column when it
// holds anything and from released plus held otherwise.
func totals(rows []models.Logistics) sums {
	var s sums
	for _, r := range rows {
		s.released += r.Released
		s.held += r.Held
		s.carriers += r.TotalCarriers
	}
	s.vehicles = s.released + s.held
	if s.carriers > 0 {
		s.vehicles = s.carriers
	}
	return s
}

// retention is the held share of all vehicles, in percent.
func (s sums) retention() float64 {
	if s.vehicles <= 0 {
		return 0
	}
	return models.Round2(float64(s.held) / float64(s.vehicles) * 100)
}

func metric(cur, prev float64) Metric {
	return Metric{Value: cur, Delta: models.Round2(cur - prev)}
}

func rankCarriers(rows []models.Logistics, value func(models.Logistics) int) []CarrierValue {
	idx := make(map[string]int)
	out := []CarrierValue{}
	for _, r := range rows {
		i, ok := idx[r.Carrier]
		if !ok {
			i = len(out)
			idx[r.Carrier] = i
			out = append(out, CarrierValue{Carrier: r.Carrier})
		}
		out[i].Value += value(r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Carrier < out[j].Carrier
	})
	return out
}

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}

func heatmap(rows []models.Logistics) []HeatCell {
	type key struct {
		day     time.Weekday
		carrier string
	}
	acc := make(map[key]*sums)
	for _, r := range rows {
		k := key{r.Date.Weekday(), r.Carrier}
		if acc[k] == nil {
			acc[k] = &sums{}
		}
		acc[k].released += r.Released
		acc[k].held += r.Held
	}
	carriers := sortedStrings(rows, func(r models.Logistics) string { return r.Carrier })
	out := []HeatCell{}
	for _, day := range weekdays {
		for _, c := range carriers {
			if s, ok := acc[key{day, c}]; ok {
				out = append(out, HeatCell{Weekday: day.String(), Carrier: c, Rate: models.RetentionPercent(s.released, s.held)})
			}
		}
	}
	return out
}

// aggregate groups the rows accepted by keep per period key and carrier.
func aggregate(rows []models.Logistics, keep func(models.Logistics) bool, period func(models.Logistics) string) []CarrierPeriod {
	type key struct{ period, carrier string }
	idx := make(map[key]int)
	out := []CarrierPeriod{}
	for _, r := range rows {
		if !keep(r) {
			continue
		}
		k := key{period(r), r.Carrier}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, CarrierPeriod{Period: k.period, Carrier: k.carrier})
		}
		out[i].Released += r.Released
		out[i].Held += r.Held
	}
	for i := range out {
		out[i].Rate = models.RetentionPercent(out[i].Released, out[i].Held)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].Carrier < out[j].Carrier
	})
	return out
}

func shares(rows []models.Logistics, name func(models.Logistics) string) []Share {
	idx := make(map[string]int)
	out := []Share{}
	for _, r := range rows {
		n := name(r)
		i, ok := idx[n]
		if !ok {
			i = len(out)
			idx[n] = i
			out = append(out, Share{Name: n})
		}
		out[i].Released += r.Released
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func scatter(rows []models.Logistics, mean float64) Scatter {
	s := Scatter{Points: []ScatterPoint{}, Mean: mean}
	for _, c := range rankCarriers(rows, func(r models.Logistics) int { return r.Released }) {
		s.Points = append(s.Points, ScatterPoint{Carrier: c.Carrier, Released: c.Value})
	}
	held := make(map[string]int)
	for _, r := range rows {
		held[r.Carrier] += r.Held
	}
	for i := range s.Points {
		p := &s.Points[i]
		p.Held = held[p.Carrier]
		p.Total = p.Released + p.Held
		p.Rate = models.RetentionPercent(p.Released, p.Held)
	}
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Carrier < s.Points[j].Carrier })
	return s
}
