package models

import (
	"strconv"
	"strings"
)

// FlightType is the shift a drone flight was logged under.
type FlightType string

const (
	FlightFixed   FlightType = "FIXO"
	FlightReserve FlightType = "RESERVA"
)

// ParseFlightType maps known spellings onto the canonical values. Anything
// else is kept upper-cased so legacy rows survive a round trip.
func ParseFlightType(s string) FlightType {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "FIXO", "FIXED":
		return FlightFixed
	case "RESERVA", "RESERVE":
		return FlightReserve
	}
	return FlightType(v)
}

// Flight is one line of the drone flight log.
type Flight struct {
	Date     Date       `json:"date"`
	Operator string     `json:"operator"`
	Type     FlightType `json:"type"`
	Routes   int        `json:"routes"`
	Flights  int        `json:"flights"`
	Notes    string     `json:"notes"`
}

var FlightSchema = Schema{
	Name:       "flights",
	Table:      "voos",
	RemoteKey:  "file_path_drones",
	DateLayout: DayFirstDate,
	Columns: []Column{
		{Name: "Data"},
		{Name: "Operador"},
		{Name: "Tipo"},
		{Name: "Rotas", Integer: true},
		{Name: "Voos", Integer: true},
		{Name: "Obs"},
	},
}

func (f Flight) Day() Date { return f.Date }

func (f Flight) Values() []string {
	return []string{
		f.Date.Format(FlightSchema.DateLayout),
		f.Operator,
		string(f.Type),
		strconv.Itoa(f.Routes),
		strconv.Itoa(f.Flights),
		f.Notes,
	}
}
