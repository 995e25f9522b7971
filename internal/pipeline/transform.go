package pipeline

import (
	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
)

// View is the aggregated form of one dataset in one snapshot, as consumed by
// chart and map renderers.
type View struct {
	Dataset     domain.Dataset           `json:"dataset"`
	Generation  uint64                   `json:"generation"`
	Filter      domain.Filter            `json:"filter"`
	Series      []domain.AggregateSeries `json:"series"`
	Domain      domain.ValueDomain       `json:"domain"`
	Counts      []domain.RegionCount     `json:"counts"`
	CountDomain domain.ValueDomain       `json:"count_domain"`
	Records     int                      `json:"records"`
	Unresolved  int                      `json:"unresolved"`
	Malformed   int                      `json:"malformed"`
}

// Aggregator builds Views with the stateless domain engine.
type Aggregator struct {
	regions  *domain.RegionTable
	fallback domain.ValueDomain
}

// NewAggregator creates an Aggregator. Pass nil regions to use the embedded table.
func NewAggregator(regions *domain.RegionTable, fallback domain.ValueDomain) *Aggregator {
	if regions == nil {
		regions = domain.DefaultRegions()
	}
	return &Aggregator{regions: regions, fallback: fallback}
}

// Regions returns the reconciliation table the aggregator uses.
func (a *Aggregator) Regions() *domain.RegionTable { return a.regions }

// Fallback returns the domain used when a dataset has no positive values.
func (a *Aggregator) Fallback() domain.ValueDomain { return a.fallback }

// DefaultViews aggregates d the way it is published when no filter is
// chosen. A dataset that splits by category yields one view per category so
// that, say, high school and bachelor's rates never share a mean. Any other
// dataset, or one with no categories present, yields a single unfiltered view.
func (a *Aggregator) DefaultViews(snap *snapshot.Snapshot, d domain.Dataset) []View {
	if !d.SplitsByCategory() {
		return []View{a.Aggregate(snap, d, domain.Filter{})}
	}
	categories := domain.CategoriesOf(snap.Records(d))
	if len(categories) == 0 {
		return []View{a.Aggregate(snap, d, domain.Filter{})}
	}
	views := make([]View, 0, len(categories))
	for _, c := range categories {
		views = append(views, a.Aggregate(snap, d, domain.Filter{Category: c}))
	}
	return views
}

// Aggregate filters one dataset of snap and reduces it to series, counts and domains.
func (a *Aggregator) Aggregate(snap *snapshot.Snapshot, d domain.Dataset, f domain.Filter) View {
	records := domain.FilterRecords(snap.Records(d), f)
	series, malformed := a.regions.Group(records)
	counts := a.regions.CountByRegion(records)

	countValues := make([]float64, 0, len(counts))
	unresolved := 0
	for _, c := range counts {
		if !c.Region.IsResolved() {
			unresolved = c.Count
			continue
		}
		countValues = append(countValues, float64(c.Count))
	}

	// The color domain covers resolved regions only.
	drawable := make([]domain.AggregateSeries, 0, len(series))
	for _, s := range series {
		if s.Key.IsResolved() {
			drawable = append(drawable, s)
		}
	}

	return View{
		Dataset:     d,
		Generation:  snap.Generation,
		Filter:      f,
		Series:      series,
		Domain:      domain.ComputeSeriesDomain(drawable, a.fallback),
		Counts:      counts,
		CountDomain: domain.ComputeDomain(countValues, a.fallback),
		Records:     len(records),
		Unresolved:  unresolved,
		Malformed:   malformed,
	}
}
