package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
)

// flexText decodes a JSON string, number or null into raw text so the
// engine applies one parsing policy to every source.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexText(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*f = flexText(n.String())
	}
	return nil
}

// coverageRow is one element of the coverage JSON array. State is a numeric
// state code given either as "06" or as 6.
type coverageRow struct {
	State   flexText `json:"State"`
	Year    int      `json:"Year"`
	Percent flexText `json:"No_Public_Coverage_Percent"`
}

// ParseCoverageJSON decodes the public coverage dataset. Integer state codes
// are zero-padded to two digits.
func ParseCoverageJSON(r io.Reader) ([]domain.CoverageRecord, error) {
	var rows []coverageRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("parse coverage json: %w", err)
	}

	out := make([]domain.CoverageRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.CoverageRecord{
			StateCode: normalizeStateCode(string(row.State)),
			Year:      row.Year,
			Percent:   string(row.Percent),
		})
	}
	return out, nil
}

// ParseEducationJSON decodes the attainment dataset, shaped as
// {"Kentucky": {"2021": {"High school graduate": 33.1, ...}}}. Year keys that
// are not integers are skipped. Output is sorted by state, year and level.
func ParseEducationJSON(r io.Reader) ([]domain.EducationRecord, error) {
	var byState map[string]map[string]map[string]flexText
	if err := json.NewDecoder(r).Decode(&byState); err != nil {
		return nil, fmt.Errorf("parse education json: %w", err)
	}

	var out []domain.EducationRecord //nolint:prealloc // nested map sizes
	for _, state := range sortedKeys(byState) {
		years := byState[state]
		for _, yearKey := range sortedKeys(years) {
			year, err := strconv.Atoi(strings.TrimSpace(yearKey))
			if err != nil {
				continue
			}
			levels := years[yearKey]
			for _, level := range sortedKeys(levels) {
				out = append(out, domain.EducationRecord{
					State:   state,
					Year:    year,
					Level:   level,
					Percent: string(levels[level]),
				})
			}
		}
	}
	return out, nil
}

// normalizeStateCode zero-pads a one-digit state code ("6" -> "06").
func normalizeStateCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
