package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// RegionTableVersion identifies the embedded reconciliation table.
const RegionTableVersion = "us-states-51.v1"

//go:embed regions.json
var regionsJSON []byte

var (
	// ErrInvalidRegionTable is returned when a table has malformed or colliding rows.
	ErrInvalidRegionTable = errors.New("invalid region table")

	numericCodeRe = regexp.MustCompile(`^[0-9]{2}$`)
	postalCodeRe  = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Region is one row of the reconciliation table.
type Region struct {
	NumericCode string `json:"numericCode"`
	Postal      string `json:"postal"`
	Name        string `json:"name"`
}

// RegionTable maps between postal codes, numeric codes and full names.
// It is immutable after construction and safe for concurrent use.
type RegionTable struct {
	regions   []Region
	byPostal  map[string]Region
	byNumeric map[string]Region
	byName    map[string]Region
}

var defaultRegions = sync.OnceValue(func() *RegionTable {
	t, err := LoadRegionTable(bytes.NewReader(regionsJSON))
	if err != nil {
		panic(fmt.Sprintf("embedded region table: %v", err))
	}
	return t
})

// DefaultRegions returns the embedded 50 states + DC table.
func DefaultRegions() *RegionTable {
	return defaultRegions()
}

// LoadRegionTable decodes a JSON array of regions and validates it.
func LoadRegionTable(r io.Reader) (*RegionTable, error) {
	var regions []Region
	if err := json.NewDecoder(r).Decode(&regions); err != nil {
		return nil, fmt.Errorf("decode region table: %w", err)
	}
	return NewRegionTable(regions)
}

// NewRegionTable builds a table, rejecting malformed rows and any numeric
// code, postal code or folded name that appears twice.
func NewRegionTable(regions []Region) (*RegionTable, error) {
	t := &RegionTable{
		regions:   make([]Region, 0, len(regions)),
		byPostal:  make(map[string]Region, len(regions)),
		byNumeric: make(map[string]Region, len(regions)),
		byName:    make(map[string]Region, len(regions)),
	}
	for i, r := range regions {
		r.Name = strings.TrimSpace(r.Name)
		switch {
		case !numericCodeRe.MatchString(r.NumericCode):
			return nil, fmt.Errorf("%w: row %d: numeric code %q is not two digits", ErrInvalidRegionTable, i, r.NumericCode)
		case !postalCodeRe.MatchString(r.Postal):
			return nil, fmt.Errorf("%w: row %d: postal code %q is not two upper-case letters", ErrInvalidRegionTable, i, r.Postal)
		case r.Name == "":
			return nil, fmt.Errorf("%w: row %d: empty name", ErrInvalidRegionTable, i)
		}

		name := foldName(r.Name)
		if _, dup := t.byNumeric[r.NumericCode]; dup {
			return nil, fmt.Errorf("%w: duplicate numeric code %q", ErrInvalidRegionTable, r.NumericCode)
		}
		if _, dup := t.byPostal[r.Postal]; dup {
			return nil, fmt.Errorf("%w: duplicate postal code %q", ErrInvalidRegionTable, r.Postal)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidRegionTable, r.Name)
		}

		t.byNumeric[r.NumericCode] = r
		t.byPostal[r.Postal] = r
		t.byName[name] = r
		t.regions = append(t.regions, r)
	}
	slices.SortFunc(t.regions, func(a, b Region) int { return strings.Compare(a.Postal, b.Postal) })
	return t, nil
}

// Len returns the number of regions in the table.
func (t *RegionTable) Len() int { return len(t.regions) }

// Regions returns a copy of the table rows sorted by postal code.
func (t *RegionTable) Regions() []Region {
	return slices.Clone(t.regions)
}

// Lookup returns the full row for a canonical region.
func (t *RegionTable) Lookup(region CanonicalRegion) (Region, bool) {
	r, ok := t.byPostal[string(region)]
	return r, ok
}

// foldName normalizes a full name for case-insensitive comparison.
// A Caser is stateful, so one is created per call.
func foldName(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
