package models

import (
	"math"
	"strconv"
	"strings"
)

// OperationType classifies the outbound operation a vehicle belongs to.
type OperationType string

const (
	OperationLML     OperationType = "LML"
	OperationDirect  OperationType = "Direta"
	OperationReverse OperationType = "Reversa"
	OperationOther   OperationType = "Outros"
)

var Operations = []OperationType{OperationLML, OperationDirect, OperationReverse, OperationOther}

// ParseOperationType maps known spellings onto the canonical values and keeps
// anything else trimmed.
func ParseOperationType(s string) OperationType {
	v := strings.TrimSpace(s)
	switch strings.ToUpper(v) {
	case "LML":
		return OperationLML
	case "DIRETA", "DIRECT":
		return OperationDirect
	case "REVERSA", "REVERSE":
		return OperationReverse
	case "OUTROS", "OUTRO", "OTHER":
		return OperationOther
	}
	return OperationType(v)
}

// Logistics is one day of gate results for a carrier: vehicles released and
// vehicles held in the audit queue ("malha fina").
type Logistics struct {
	Date      Date          `json:"date"`
	Carrier   string        `json:"carrier"`
	Operation OperationType `json:"operation"`
	Released  int           `json:"released"`
	Held      int           `json:"held"`
	// TotalCarriers is the gate count reported by the source sheet, 0 when absent
	TotalCarriers int `json:"total_carriers,omitempty"`
}

var LogisticsSchema = Schema{
	Name:       "logistics",
	Table:      "performance_logistica",
	RemoteKey:  "file_path",
	DateLayout: ISODate,
	Columns: []Column{
		{Name: "DATA"},
		{Name: "TRANSPORTADORA"},
		{Name: "OPERAÇÃO"},
		{Name: "LIBERADOS", Integer: true},
		{Name: "MALHA", Integer: true},
		{Name: "TOTAL TRANSPORTADORAS", Integer: true},
	},
}

func (l Logistics) Day() Date { return l.Date }

func (l Logistics) Values() []string {
	return []string{
		l.Date.Format(LogisticsSchema.DateLayout),
		l.Carrier,
		string(l.Operation),
		strconv.Itoa(l.Released),
		strconv.Itoa(l.Held),
		strconv.Itoa(l.TotalCarriers),
	}
}

// Total is the number of vehicles that went through the gate.
func (l Logistics) Total() int { return l.Released + l.Held }

func (l Logistics) RetentionRate() float64 { return RetentionRate(l.Released, l.Held) }

// RetentionRate is held / (released + held), 0 when nothing went through.
func RetentionRate(released, held int) float64 {
	if released < 0 {
		released = 0
	}
	if held < 0 {
		held = 0
	}
	total := released + held
	if total == 0 {
		return 0
	}
	return float64(held) / float64(total)
}

// RetentionPercent is the rate as a percentage rounded to two decimals.
func RetentionPercent(released, held int) float64 {
	return Round2(RetentionRate(released, held) * 100)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
