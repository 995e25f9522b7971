package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/observability"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockReloader struct {
	mu       sync.Mutex
	datasets map[domain.Dataset][]domain.Record
	errs     []error
	calls    int
}

func (m *mockReloader) Reload(ctx context.Context) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snapshot.New(uint64(m.calls), time.Time{}, m.datasets), nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published [][]pipeline.View
	err       error
	signal    chan struct{}
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{signal: make(chan struct{}, 16)}
}

func (m *mockPublisher) PublishViews(_ context.Context, views []pipeline.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, views)
	m.signal <- struct{}{}
	return nil
}

func (m *mockPublisher) batches() [][]pipeline.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]pipeline.View(nil), m.published...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDatasets() map[domain.Dataset][]domain.Record {
	return map[domain.Dataset][]domain.Record{
		domain.DatasetObesity: {
			{Region: "KY", Period: 2020, Value: "30.0"},
			{Region: "KY", Period: 2020, Value: "40.0"},
			{Region: "21", Period: 2021, Value: "34"},
			{Region: "Atlantis", Period: 2021, Value: "12"},
			{Region: "CA", Period: 2021, Value: "n/a"},
		},
		domain.DatasetCoverage: {
			{Region: "06", Period: 2019, Value: "35.5"},
		},
	}
}

func newTestPipeline(r pipeline.Reloader, pub pipeline.ViewPublisher, clock clockwork.Clock) (*pipeline.Pipeline, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	agg := pipeline.NewAggregator(nil, domain.DefaultFallbackDomain())
	return pipeline.New(r, agg, pub, discardLogger(), metrics, clock, time.Minute), metrics
}

// --- tests ---

func TestPipeline_Refresh_PublishesEveryDataset(t *testing.T) {
	pub := newMockPublisher()
	p, metrics := newTestPipeline(&mockReloader{datasets: testDatasets()}, pub, clockwork.NewFakeClock())

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.Refresh(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	batches := pub.batches()
	require.Len(t, batches, 1)
	views := batches[0]
	require.Len(t, views, len(domain.Datasets()))

	byDataset := make(map[domain.Dataset]pipeline.View, len(views))
	for _, v := range views {
		byDataset[v.Dataset] = v
	}

	obesity := byDataset[domain.DatasetObesity]
	assert.Equal(t, uint64(1), obesity.Generation)
	assert.Equal(t, 5, obesity.Records)
	assert.Equal(t, 1, obesity.Unresolved)
	assert.Equal(t, 1, obesity.Malformed)

	ky, ok := findSeries(obesity.Series, "KY")
	require.True(t, ok)
	want := []domain.Point{{Period: 2020, Value: 35}, {Period: 2021, Value: 34}}
	if diff := cmp.Diff(want, ky.Points); diff != "" {
		t.Errorf("KY points mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.ValueDomain{Min: 34, Max: 35}, obesity.Domain)

	assert.Empty(t, byDataset[domain.DatasetHospitals].Series)
	assert.Equal(t, domain.DefaultFallbackDomain(), byDataset[domain.DatasetHospitals].Domain)

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.RecordsLoaded.WithLabelValues("obesity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MalformedValues.WithLabelValues("obesity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UnresolvedRegions.WithLabelValues("obesity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotGeneration))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SeriesPublished.WithLabelValues("coverage")))
}

func TestPipeline_Refresh_SplitsCategoriesIntoViews(t *testing.T) {
	datasets := map[domain.Dataset][]domain.Record{
		domain.DatasetObesity: {
			{Region: "KY", Period: 2020, Value: "30", Category: "Total"},
			{Region: "KY", Period: 2020, Value: "20", Category: "18 - 24"},
		},
		domain.DatasetEducation: {
			{Region: "Kentucky", Period: 2021, Value: "33.1", Category: domain.LevelHighSchool},
			{Region: "Kentucky", Period: 2021, Value: "20", Category: domain.LevelSomeCollege},
			{Region: "Kentucky", Period: 2021, Value: "25", Category: domain.LevelBachelors},
		},
		domain.DatasetHospitals: {
			{Region: "KY", Period: 2022, Value: "100", Category: domain.CategoryAcute},
			{Region: "KY", Period: 2022, Value: "50", Category: domain.CategoryNonAcute},
		},
	}
	pub := newMockPublisher()
	p, metrics := newTestPipeline(&mockReloader{datasets: datasets}, pub, clockwork.NewFakeClock())

	require.NoError(t, p.Refresh(context.Background()))
	batches := pub.batches()
	require.Len(t, batches, 1)

	kentucky := make(map[string]float64)
	for _, v := range batches[0] {
		ky, ok := findSeries(v.Series, "KY")
		if !ok {
			continue
		}
		key := string(v.Dataset) + "/" + v.Filter.Category
		require.Len(t, ky.Points, 1, key)
		kentucky[key] = ky.Points[0].Value
	}

	want := map[string]float64{
		"obesity/18 - 24":                       20,
		"obesity/Total":                         30,
		"education/Bachelor's degree or higher": 25,
		"education/High school graduate":        33.1,
		"education/Some college":                20,
		"hospitals/":                            75,
	}
	if diff := cmp.Diff(want, kentucky); diff != "" {
		t.Errorf("Kentucky values per view mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsLoaded.WithLabelValues("education")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SeriesPublished.WithLabelValues("education")))
}

func TestPipeline_Refresh_NilPublisher(t *testing.T) {
	p, metrics := newTestPipeline(&mockReloader{datasets: testDatasets()}, nil, nil)

	require.NoError(t, p.Refresh(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SeriesPublished.WithLabelValues("obesity")))
}

func TestPipeline_Refresh_ReloadError(t *testing.T) {
	reloader := &mockReloader{errs: []error{errors.New("disk gone")}}
	pub := newMockPublisher()
	p, metrics := newTestPipeline(reloader, pub, clockwork.NewFakeClock())

	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.Empty(t, pub.batches())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReloadErrors))
}

func TestPipeline_Refresh_PublishError(t *testing.T) {
	pub := newMockPublisher()
	pub.err = errors.New("broker unavailable")
	p, metrics := newTestPipeline(&mockReloader{datasets: testDatasets()}, pub, clockwork.NewFakeClock())

	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish generation 1")
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishErrors))
}

func TestPipeline_Run_StopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := newMockPublisher()
	p, metrics := newTestPipeline(&mockReloader{datasets: testDatasets()}, pub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitSignal(t, pub.signal)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_RefreshesOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := newMockPublisher()
	p, _ := newTestPipeline(&mockReloader{datasets: testDatasets()}, pub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	waitSignal(t, pub.signal)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	waitSignal(t, pub.signal)

	batches := pub.batches()
	require.Len(t, batches, 2)
	assert.Equal(t, uint64(2), batches[1][0].Generation)
}

func TestPipeline_Run_RetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reloader := &mockReloader{
		datasets: testDatasets(),
		errs:     []error{errors.New("transient"), errors.New("transient")},
	}
	pub := newMockPublisher()
	p, metrics := newTestPipeline(reloader, pub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(400 * time.Millisecond)

	waitSignal(t, pub.signal)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReloadErrors))
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func findSeries(series []domain.AggregateSeries, key domain.CanonicalRegion) (domain.AggregateSeries, bool) {
	for _, s := range series {
		if s.Key == key {
			return s, true
		}
	}
	return domain.AggregateSeries{}, false
}
