package domain

import (
	"encoding/json"
	"fmt"
)

// Dataset names one of the source datasets held in a snapshot.
type Dataset string

const (
	DatasetObesity   Dataset = "obesity"
	DatasetHospitals Dataset = "hospitals"
	DatasetCoverage  Dataset = "coverage"
	DatasetEducation Dataset = "education"
)

// Datasets returns every known dataset in display order.
func Datasets() []Dataset {
	return []Dataset{DatasetObesity, DatasetHospitals, DatasetCoverage, DatasetEducation}
}

// SplitsByCategory reports whether the categories of d describe different
// populations whose values must not share a mean. Hospital categories are
// kinds of one quantity and stay blended.
func (d Dataset) SplitsByCategory() bool {
	return d == DatasetObesity || d == DatasetEducation
}

// DefaultCategory is the category drawn when a split dataset is queried
// without one, or "" when d has no preferred category.
func (d Dataset) DefaultCategory() string {
	if d == DatasetObesity {
		return StratificationTotal
	}
	return ""
}

// ParseDataset validates a dataset name, e.g. from a URL path.
func ParseDataset(s string) (Dataset, bool) {
	for _, d := range Datasets() {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// Record is one raw observation. Region may be a postal code, a full name or
// a numeric code depending on the source dataset. Value is kept as the raw
// source text and parsed by the engine.
type Record struct {
	Region   string `json:"region"`
	Period   int    `json:"period"`
	Value    string `json:"value"`
	Category string `json:"category,omitempty"`
}

// CanonicalRegion is the postal-code form of a state or district.
type CanonicalRegion string

// Unresolved marks an identifier that matched no known region.
const Unresolved CanonicalRegion = ""

// IsResolved reports whether r names a known region.
func (r CanonicalRegion) IsResolved() bool { return r != Unresolved }

func (r CanonicalRegion) String() string {
	if r == Unresolved {
		return "unresolved"
	}
	return string(r)
}

// MarshalJSON encodes Unresolved as null so consumers cannot mistake it for a region.
func (r CanonicalRegion) MarshalJSON() ([]byte, error) {
	if r == Unresolved {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON accepts a postal code string or null.
func (r *CanonicalRegion) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Unresolved
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode canonical region: %w", err)
	}
	*r = CanonicalRegion(s)
	return nil
}

// Point is one averaged observation within a series.
type Point struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

// AggregateSeries holds the averaged values of one region, ascending by period.
// Periods are unique within a series.
type AggregateSeries struct {
	Key    CanonicalRegion `json:"region"`
	Points []Point         `json:"points"`
}

// ValueAt returns the value for period, if the series has one.
func (s AggregateSeries) ValueAt(period int) (float64, bool) {
	for _, p := range s.Points {
		if p.Period == period {
			return p.Value, true
		}
	}
	return 0, false
}

// ValueDomain is the [min, max] range used to calibrate a color or axis scale.
type ValueDomain struct {
	Min float64
	Max float64
}

// MarshalJSON encodes the domain as a two-element array, the shape scale
// builders expect.
func (d ValueDomain) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{d.Min, d.Max})
}

// UnmarshalJSON decodes a two-element array.
func (d *ValueDomain) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode value domain: %w", err)
	}
	d.Min, d.Max = pair[0], pair[1]
	return nil
}

// RegionCount is the number of records that reconciled to a region.
type RegionCount struct {
	Region CanonicalRegion `json:"region"`
	Count  int             `json:"count"`
}
