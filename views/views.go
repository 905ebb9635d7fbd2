// Package views computes the dashboard payloads for each dataset. Every
// function is pure: rows in, JSON-ready structs out.
package views

import (
	"sort"
	"time"

	"github.com/vainnor/painel/models"
)

// Period is an inclusive date range.
type Period struct {
	From models.Date `json:"from"`
	To   models.Date `json:"to"`
}

func (p Period) Contains(d models.Date) bool {
	return !d.Before(p.From.Time) && !d.After(p.To.Time)
}

// Days is the number of calendar days in the range.
func (p Period) Days() int {
	return int(p.To.Sub(p.From.Time).Hours()/24) + 1
}

// set is a membership filter where nil matches everything.
type set[K comparable] map[K]struct{}

func newSet[K comparable](values []K) set[K] {
	if values == nil {
		return nil
	}
	s := make(set[K], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set[K]) match(v K) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

func distinct[T any, K comparable](rows []T, key func(T) K) []K {
	seen := make(map[K]struct{})
	var out []K
	for _, r := range rows {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func sortedStrings[T any](rows []T, key func(T) string) []string {
	out := distinct(rows, key)
	sort.Strings(out)
	return out
}

func yearsDesc[T models.Record](rows []T) []int {
	years := distinct(rows, func(r T) int { return r.Day().Year() })
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

func today(now time.Time) models.Date {
	return models.DateOf(now)
}

func addDays(d models.Date, n int) models.Date {
	return models.DateOf(d.AddDate(0, 0, n))
}

func monthKey(d models.Date) string { return d.Format("2006-01") }
