package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLoader struct {
	datasets map[domain.Dataset][]domain.Record
	err      error
	calls    int
	onLoad   func()
}

func (m *mockLoader) LoadAll(_ context.Context) (map[domain.Dataset][]domain.Record, error) {
	m.calls++
	if m.onLoad != nil {
		m.onLoad()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.datasets, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testLoadTime = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func TestStore_ReloadPublishes(t *testing.T) {
	loader := &mockLoader{datasets: map[domain.Dataset][]domain.Record{
		domain.DatasetObesity: {{Region: "KY", Period: 2020, Value: "36.6"}},
	}}
	store := NewStore(loader, clockwork.NewFakeClockAt(testLoadTime), discardLogger())

	assert.Nil(t, store.Current())

	snap, err := store.Reload(context.Background())
	require.NoError(t, err)

	assert.Same(t, snap, store.Current())
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, testLoadTime, snap.LoadedAt)
	assert.Equal(t, 1, snap.Size())
	assert.Len(t, snap.Records(domain.DatasetObesity), 1)
	assert.Empty(t, snap.Records(domain.DatasetCoverage))
}

func TestStore_GenerationsIncrease(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testLoadTime)
	store := NewStore(&mockLoader{}, clock, discardLogger())

	first, err := store.Reload(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := store.Reload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Generation+1, second.Generation)
	assert.Equal(t, testLoadTime.Add(time.Minute), second.LoadedAt)
}

func TestStore_FailedReloadKeepsCurrent(t *testing.T) {
	loader := &mockLoader{}
	store := NewStore(loader, clockwork.NewFakeClockAt(testLoadTime), discardLogger())

	good, err := store.Reload(context.Background())
	require.NoError(t, err)

	loader.err = errors.New("disk gone")
	_, err = store.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload snapshot")

	assert.Same(t, good, store.Current())
}

func TestStore_CancelledReloadIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loader := &mockLoader{onLoad: cancel}
	store := NewStore(loader, clockwork.NewFakeClockAt(testLoadTime), discardLogger())

	_, err := store.Reload(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store.Current(), "superseded load must not be published")

	snap, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation, "discarded load does not consume a generation")
}

func TestNew_NilDatasets(t *testing.T) {
	snap := New(3, testLoadTime, nil)
	assert.Equal(t, 0, snap.Size())
	assert.Nil(t, snap.Records(domain.DatasetHospitals))
}
