// Package geojson joins aggregate series onto a state boundary
// FeatureCollection for choropleth rendering.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
)

// Property names written onto joined features.
const (
	PropRegion = "region"
	PropValue  = "value"
	PropName   = "name"
)

// Layer is a parsed boundary collection whose features have been reconciled
// to canonical regions. It is immutable and safe for concurrent use.
type Layer struct {
	features   []*geomjson.Feature
	regions    []domain.CanonicalRegion
	unresolved int
}

// rawCollection defers feature decoding so a failure names its feature.
type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// Load parses a FeatureCollection and reconciles every feature against table.
// The feature id is tried as a numeric code first, then properties.name as a
// full name.
func Load(r io.Reader, table *domain.RegionTable) (*Layer, error) {
	var raw rawCollection
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if raw.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode feature collection: unexpected type %q", raw.Type)
	}

	l := &Layer{
		features: make([]*geomjson.Feature, 0, len(raw.Features)),
		regions:  make([]domain.CanonicalRegion, 0, len(raw.Features)),
	}
	for i, data := range raw.Features {
		var f geomjson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		region := reconcileFeature(&f, table)
		if !region.IsResolved() {
			l.unresolved++
		}
		l.features = append(l.features, &f)
		l.regions = append(l.regions, region)
	}
	return l, nil
}

func reconcileFeature(f *geomjson.Feature, table *domain.RegionTable) domain.CanonicalRegion {
	if f.ID != "" {
		if region := table.Reconcile(f.ID, domain.SchemeNumeric); region.IsResolved() {
			return region
		}
	}
	if name, ok := f.Properties[PropName].(string); ok {
		return table.Reconcile(name, domain.SchemeName)
	}
	return domain.Unresolved
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.features) }

// Unresolved returns how many features matched no region.
func (l *Layer) Unresolved() int { return l.unresolved }

// Regions returns the canonical region of each feature, in feature order.
func (l *Layer) Regions() []domain.CanonicalRegion {
	return append([]domain.CanonicalRegion(nil), l.regions...)
}

// Join returns a new collection whose features carry the region and the
// value at period from the matching series. Features without data get a null
// value rather than zero. The layer itself is not modified.
func (l *Layer) Join(series []domain.AggregateSeries, period int) *geomjson.FeatureCollection {
	byRegion := make(map[domain.CanonicalRegion]domain.AggregateSeries, len(series))
	for _, s := range series {
		if s.Key.IsResolved() {
			byRegion[s.Key] = s
		}
	}

	out := &geomjson.FeatureCollection{Features: make([]*geomjson.Feature, len(l.features))}
	for i, f := range l.features {
		props := make(map[string]interface{}, len(f.Properties)+2)
		for k, v := range f.Properties {
			props[k] = v
		}

		region := l.regions[i]
		props[PropRegion] = nil
		props[PropValue] = nil
		if region.IsResolved() {
			props[PropRegion] = string(region)
			if v, ok := byRegion[region].ValueAt(period); ok {
				props[PropValue] = v
			}
		}

		out.Features[i] = &geomjson.Feature{
			ID:         f.ID,
			BBox:       f.BBox,
			Geometry:   f.Geometry,
			Properties: props,
		}
	}
	return out
}
