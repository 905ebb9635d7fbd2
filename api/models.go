package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vainnor/painel/models"
	"github.com/vainnor/painel/normalize"
	"github.com/vainnor/painel/views"
)

// flightForm is the manual flight entry. Counts default to 1.
type flightForm struct {
	Date     string `json:"date" validate:"required"`
	Operator string `json:"operator" validate:"required,notblank,max=80"`
	Type     string `json:"type" validate:"omitempty,oneof=FIXO RESERVA"`
	Routes   *int   `json:"routes" validate:"omitempty,min=0,max=2147483647"`
	Flights  *int   `json:"flights" validate:"omitempty,min=0,max=2147483647"`
	Notes    string `json:"notes" validate:"max=500"`
}

func (f flightForm) record() (models.Flight, error) {
	date, ok := normalize.ParseDate(f.Date)
	if !ok {
		return models.Flight{}, fmt.Errorf("invalid date %q", f.Date)
	}
	rec := models.Flight{
		Date:     date,
		Operator: strings.TrimSpace(f.Operator),
		Type:     models.ParseFlightType(f.Type),
		Routes:   1,
		Flights:  1,
		Notes:    strings.TrimSpace(f.Notes),
	}
	if rec.Type == "" {
		rec.Type = models.FlightFixed
	}
	if f.Routes != nil {
		rec.Routes = *f.Routes
	}
	if f.Flights != nil {
		rec.Flights = *f.Flights
	}
	return rec, nil
}

// logisticsForm is the manual gate entry. The carrier total is derived.
type logisticsForm struct {
	Date      string `json:"date" validate:"required"`
	Carrier   string `json:"carrier" validate:"required,notblank,max=120"`
	Operation string `json:"operation" validate:"required,oneof=LML Direta Reversa Outros"`
	Released  int    `json:"released" validate:"min=0,max=2147483647"`
	Held      int    `json:"held" validate:"min=0,max=2147483647"`
}

func (f logisticsForm) record() (models.Logistics, error) {
	date, ok := normalize.ParseDate(f.Date)
	if !ok {
		return models.Logistics{}, fmt.Errorf("invalid date %q", f.Date)
	}
	return models.Logistics{
		Date:          date,
		Carrier:       strings.TrimSpace(f.Carrier),
		Operation:     models.OperationType(f.Operation),
		Released:      f.Released,
		Held:          f.Held,
		TotalCarriers: f.Released + f.Held,
	}, nil
}

// editRequest replaces the rows matched by Filter with Rows.
type editRequest[T any, F any] struct {
	Filter F   `json:"filter"`
	Rows   []T `json:"rows"`
}

type flightEditFilter struct {
	Operators []string    `json:"operators"`
	From      models.Date `json:"from"`
	To        models.Date `json:"to"`
	// Year 0 matches every year
	Year int `json:"year"`
}

func (f flightEditFilter) match(r models.Flight) bool {
	if f.Operators != nil && !contains(f.Operators, r.Operator) {
		return false
	}
	if f.Year != 0 && r.Date.Year() != f.Year {
		return false
	}
	return inRange(r.Date, f.From, f.To)
}

// flightExportFilter selects the rows to download with the dashboard query
// parameters operators, from, to and year. No parameters selects every row.
func flightExportFilter(q url.Values) (func(models.Flight) bool, error) {
	f, err := flightFilter(q)
	if err != nil {
		return nil, err
	}
	return flightEditFilter{Operators: f.Operators, From: f.Daily.From, To: f.Daily.To, Year: f.Year}.match, nil
}

type logisticsEditFilter struct {
	Years      []int                  `json:"years"`
	From       models.Date            `json:"from"`
	To         models.Date            `json:"to"`
	Operations []models.OperationType `json:"operations"`
	Carriers   []string               `json:"carriers"`
}

func (f logisticsEditFilter) match(r models.Logistics) bool {
	if f.Years != nil && !contains(f.Years, r.Date.Year()) {
		return false
	}
	if f.Operations != nil && !contains(f.Operations, r.Operation) {
		return false
	}
	if f.Carriers != nil && !contains(f.Carriers, r.Carrier) {
		return false
	}
	return inRange(r.Date, f.From, f.To)
}

// logisticsExportFilter selects the rows to download with the dashboard query
// parameters years, from, to, operations and carriers.
func logisticsExportFilter(q url.Values) (func(models.Logistics) bool, error) {
	f, err := logisticsFilter(q)
	if err != nil {
		return nil, err
	}
	return logisticsEditFilter{
		Years:      f.Years,
		From:       f.Period.From,
		To:         f.Period.To,
		Operations: f.Operations,
		Carriers:   f.Carriers,
	}.match, nil
}

func contains[K comparable](values []K, v K) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func inRange(d, from, to models.Date) bool {
	if !from.IsZero() && d.Before(from.Time) {
		return false
	}
	return to.IsZero() || !d.After(to.Time)
}

// list reads a comma separated parameter. An absent parameter is nil and a
// present but empty one is an empty slice.
func list(q url.Values, key string) []string {
	if !q.Has(key) {
		return nil
	}
	out := []string{}
	for _, v := range strings.Split(q.Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dateParam(q url.Values, key string) (models.Date, error) {
	v := q.Get(key)
	if v == "" {
		return models.Date{}, nil
	}
	d, ok := normalize.ParseDate(v)
	if !ok {
		return models.Date{}, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func flightFilter(q url.Values) (views.FlightFilter, error) {
	f := views.FlightFilter{Operators: list(q, "operators")}
	var errs []error
	var err error
	f.Daily.From, err = dateParam(q, "from")
	errs = append(errs, err)
	f.Daily.To, err = dateParam(q, "to")
	errs = append(errs, err)
	f.Monthly.From, err = dateParam(q, "month_from")
	errs = append(errs, err)
	f.Monthly.To, err = dateParam(q, "month_to")
	errs = append(errs, err)
	f.Year, err = intParam(q, "year")
	errs = append(errs, err)
	f.Goal, err = intParam(q, "goal")
	errs = append(errs, err)
	return f, errors.Join(errs...)
}

func logisticsFilter(q url.Values) (views.LogisticsFilter, error) {
	f := views.LogisticsFilter{
		Carriers: list(q, "carriers"),
		Months:   list(q, "months"),
	}
	var errs []error
	if ops := list(q, "operations"); ops != nil {
		f.Operations = []models.OperationType{}
		for _, op := range ops {
			f.Operations = append(f.Operations, models.ParseOperationType(op))
		}
	}
	if years := list(q, "years"); years != nil {
		f.Years = []int{}
		for _, y := range years {
			n, err := strconv.Atoi(y)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid year %q", y))
				continue
			}
			f.Years = append(f.Years, n)
		}
	}
	var err error
	f.Period.From, err = dateParam(q, "from")
	errs = append(errs, err)
	f.Period.To, err = dateParam(q, "to")
	errs = append(errs, err)
	f.Day, err = dateParam(q, "day")
	errs = append(errs, err)
	return f, errors.Join(errs...)
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
