package domain

import (
	"slices"
	"strings"
)

// Filter narrows records to one period and/or category, the way the year
// slider and age-group selector do. Zero fields match everything.
type Filter struct {
	Period   int    `json:"period,omitempty"`
	Category string `json:"category,omitempty"`
}

// IsZero reports whether f matches every record.
func (f Filter) IsZero() bool { return f.Period == 0 && f.Category == "" }

// Matches reports whether rec passes f. Categories compare case-insensitively.
func (f Filter) Matches(rec Record) bool {
	if f.Period != 0 && rec.Period != f.Period {
		return false
	}
	if f.Category != "" && !strings.EqualFold(strings.TrimSpace(rec.Category), strings.TrimSpace(f.Category)) {
		return false
	}
	return true
}

// FilterRecords returns the records matching f in input order. The input is
// not modified.
func FilterRecords(records []Record, f Filter) []Record {
	if f.IsZero() {
		return slices.Clone(records)
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// PeriodsOf returns the distinct periods present, ascending.
func PeriodsOf(records []Record) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0)
	for _, rec := range records {
		if _, ok := seen[rec.Period]; ok {
			continue
		}
		seen[rec.Period] = struct{}{}
		out = append(out, rec.Period)
	}
	slices.Sort(out)
	return out
}

// CategoriesOf returns the distinct non-empty categories present, sorted.
func CategoriesOf(records []Record) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rec := range records {
		c := strings.TrimSpace(rec.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
