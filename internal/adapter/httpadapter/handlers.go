package httpadapter

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
)

const contentTypeGeoJSON = "application/geo+json"

type datasetInfo struct {
	Name    domain.Dataset `json:"name"`
	Records int            `json:"records"`
}

type datasetsResponse struct {
	Generation uint64        `json:"generation"`
	LoadedAt   time.Time     `json:"loaded_at"`
	Datasets   []datasetInfo `json:"datasets"`
}

type seriesResponse struct {
	Dataset    domain.Dataset           `json:"dataset"`
	Generation uint64                   `json:"generation"`
	Filter     domain.Filter            `json:"filter"`
	Series     []domain.AggregateSeries `json:"series"`
	Domain     domain.ValueDomain       `json:"domain"`
	Records    int                      `json:"records"`
	Unresolved int                      `json:"unresolved"`
	Malformed  int                      `json:"malformed"`
}

type countsResponse struct {
	Dataset    domain.Dataset       `json:"dataset"`
	Generation uint64               `json:"generation"`
	Counts     []domain.RegionCount `json:"counts"`
	Domain     domain.ValueDomain   `json:"domain"`
}

type periodsResponse struct {
	Dataset domain.Dataset `json:"dataset"`
	Periods []int          `json:"periods"`
}

type categoriesResponse struct {
	Dataset    domain.Dataset `json:"dataset"`
	Categories []string       `json:"categories"`
}

type regionResponse struct {
	Region  domain.CanonicalRegion `json:"region"`
	Numeric string                 `json:"numericCode"`
	Name    string                 `json:"name"`
}

type unresolvedResponse struct {
	Region domain.CanonicalRegion `json:"region"`
	Error  string                 `json:"error"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Snapshots.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot loaded")
		return
	}

	resp := datasetsResponse{Generation: snap.Generation, LoadedAt: snap.LoadedAt}
	for _, d := range domain.Datasets() {
		resp.Datasets = append(resp.Datasets, datasetInfo{Name: d, Records: len(snap.Records(d))})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeries(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte) {
	d, f, msg, status := parseDatasetQuery(r, snap)
	if status != http.StatusOK {
		return encodeError(status, msg)
	}

	v := s.deps.Aggregator.Aggregate(snap, d, f)
	return encode(http.StatusOK, seriesResponse{
		Dataset:    v.Dataset,
		Generation: v.Generation,
		Filter:     v.Filter,
		Series:     v.Series,
		Domain:     v.Domain,
		Records:    v.Records,
		Unresolved: v.Unresolved,
		Malformed:  v.Malformed,
	})
}

func (s *Server) handleCounts(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte) {
	d, f, msg, status := parseDatasetQuery(r, snap)
	if status != http.StatusOK {
		return encodeError(status, msg)
	}

	v := s.deps.Aggregator.Aggregate(snap, d, f)
	return encode(http.StatusOK, countsResponse{
		Dataset:    v.Dataset,
		Generation: v.Generation,
		Counts:     v.Counts,
		Domain:     v.CountDomain,
	})
}

func (s *Server) handlePeriods(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte) {
	d, ok := domain.ParseDataset(r.PathValue("dataset"))
	if !ok {
		return encodeError(http.StatusNotFound, "unknown dataset")
	}
	return encode(http.StatusOK, periodsResponse{Dataset: d, Periods: domain.PeriodsOf(snap.Records(d))})
}

func (s *Server) handleCategories(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte) {
	d, ok := domain.ParseDataset(r.PathValue("dataset"))
	if !ok {
		return encodeError(http.StatusNotFound, "unknown dataset")
	}
	return encode(http.StatusOK, categoriesResponse{Dataset: d, Categories: domain.CategoriesOf(snap.Records(d))})
}

// handleChoropleth joins the dataset onto the boundary layer. Without a
// period parameter the latest period in the filtered records is drawn.
func (s *Server) handleChoropleth(r *http.Request, snap *snapshot.Snapshot) (int, string, []byte) {
	if s.deps.Boundaries == nil {
		return encodeError(http.StatusNotFound, "no boundary layer configured")
	}
	d, f, msg, status := parseDatasetQuery(r, snap)
	if status != http.StatusOK {
		return encodeError(status, msg)
	}

	period := f.Period
	if period == 0 {
		periods := domain.PeriodsOf(domain.FilterRecords(snap.Records(d), f))
		if len(periods) > 0 {
			period = slices.Max(periods)
		}
	}
	// The series keep every period so the join can pick one.
	f.Period = 0
	v := s.deps.Aggregator.Aggregate(snap, d, f)

	fc := s.deps.Boundaries.Join(v.Series, period)
	status, _, body := encode(http.StatusOK, fc)
	return status, contentTypeGeoJSON, body
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	regions := s.deps.Aggregator.Regions().Regions()
	resp := make([]regionResponse, 0, len(regions))
	for _, reg := range regions {
		resp = append(resp, toRegionResponse(reg))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	scheme := domain.SchemeAny
	if raw := r.URL.Query().Get("scheme"); raw != "" {
		var ok bool
		if scheme, ok = domain.ParseScheme(raw); !ok {
			writeError(w, http.StatusBadRequest, "invalid scheme")
			return
		}
	}

	table := s.deps.Aggregator.Regions()
	canonical := table.Reconcile(r.PathValue("id"), scheme)
	reg, ok := table.Lookup(canonical)
	if !ok {
		writeJSON(w, http.StatusNotFound, unresolvedResponse{Region: domain.Unresolved, Error: domain.Unresolved.String()})
		return
	}
	writeJSON(w, http.StatusOK, toRegionResponse(reg))
}

func toRegionResponse(reg domain.Region) regionResponse {
	return regionResponse{Region: domain.CanonicalRegion(reg.Postal), Numeric: reg.NumericCode, Name: reg.Name}
}

// parseDatasetQuery reads the dataset path value and the period and
// category query parameters. A dataset that splits by category is narrowed
// to one category even when none is given.
func parseDatasetQuery(r *http.Request, snap *snapshot.Snapshot) (domain.Dataset, domain.Filter, string, int) {
	d, ok := domain.ParseDataset(r.PathValue("dataset"))
	if !ok {
		return "", domain.Filter{}, "unknown dataset", http.StatusNotFound
	}

	q := r.URL.Query()
	f := domain.Filter{Category: q.Get("category")}
	if raw := q.Get("period"); raw != "" {
		period, err := strconv.Atoi(raw)
		if err != nil || period <= 0 {
			return "", domain.Filter{}, "invalid period", http.StatusBadRequest
		}
		f.Period = period
	}

	f, categories, ok := defaultCategory(snap.Records(d), d, f)
	if !ok {
		return "", domain.Filter{}, "category required: one of " + strings.Join(categories, ", "), http.StatusBadRequest
	}
	return d, f, "", http.StatusOK
}

// defaultCategory fills in f.Category for a split dataset queried without
// one: the only category present, or the dataset's default when present.
// Otherwise it reports false with the categories to choose from.
func defaultCategory(records []domain.Record, d domain.Dataset, f domain.Filter) (domain.Filter, []string, bool) {
	if f.Category != "" || !d.SplitsByCategory() {
		return f, nil, true
	}

	categories := domain.CategoriesOf(records)
	switch len(categories) {
	case 0:
		return f, nil, true
	case 1:
		f.Category = categories[0]
		return f, nil, true
	}

	if def := d.DefaultCategory(); def != "" {
		if slices.ContainsFunc(categories, func(c string) bool { return strings.EqualFold(c, def) }) {
			f.Category = def
			return f, nil, true
		}
	}
	return f, categories, false
}

func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }
