package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/atkinslab/smap-extract/internal/observability"
	"github.com/atkinslab/smap-extract/internal/pipeline"
)

// --- mocks ---

type mockFetcher struct {
	cells map[string][]domain.CellSamples // keyed by ISO date
	errs  map[string]error
	calls []string
}

func (m *mockFetcher) FetchDate(_ context.Context, d domain.Date) ([]domain.CellSamples, error) {
	m.calls = append(m.calls, d.ISO())
	if err := m.errs[d.ISO()]; err != nil {
		return nil, err
	}
	return m.cells[d.ISO()], nil
}

type mockStore struct {
	saved []domain.BandArray
	err   error
}

func (m *mockStore) Save(arr domain.BandArray) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, arr)
	return fmt.Sprintf("data/%s_%s.npy", arr.Date, arr.Band), nil
}

type mockNotifier struct {
	events []domain.ArchiveEvent
	err    error
}

func (m *mockNotifier) Publish(_ context.Context, ev domain.ArchiveEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

type mockSidecar struct {
	dates  []domain.Date
	arrays [][]domain.BandArray
	err    error
}

func (m *mockSidecar) WriteDate(d domain.Date, arrays []domain.BandArray) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.dates = append(m.dates, d)
	m.arrays = append(m.arrays, arrays)
	return fmt.Sprintf("data/%s.nc", d), nil
}

// --- helpers ---

const (
	surface  = domain.Band("sm_surface")
	rootzone = domain.Band("sm_rootzone")
)

func singleDay(y, m, d int) domain.Range {
	return domain.Range{YearStart: y, YearEnd: y, MonthStart: m, MonthEnd: m, DayStart: d, DayEnd: d}
}

func testOptions(r domain.Range) pipeline.Options {
	return pipeline.Options{
		Dates:     r,
		Bands:     []domain.Band{surface, rootzone},
		FillValue: -9999,
	}
}

func sampleCells() []domain.CellSamples {
	return []domain.CellSamples{
		{surface: {0.31, -9999}, rootzone: {0.4}},
		{surface: {0.28}, rootzone: {-9999, 0.5}},
	}
}

func newJob(opts pipeline.Options, f pipeline.Fetcher, s pipeline.ArrayStore, sc pipeline.SidecarWriter, n pipeline.Notifier) *pipeline.Job {
	return pipeline.New(opts, f, s, sc, n, slog.Default(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestJob_Run_HappyPath(t *testing.T) {
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
	}}
	store := &mockStore{}
	notifier := &mockNotifier{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, notifier)

	require.Error(t, j.CheckReadiness(context.Background()))
	require.NoError(t, j.Run(context.Background()))
	assert.NoError(t, j.CheckReadiness(context.Background()))

	assert.Equal(t, []string{"2016-01-01"}, fetcher.calls)
	require.Len(t, store.saved, 2)

	// Band order follows the configuration, values are concatenated in grid
	// order with the sentinel replaced.
	assert.Equal(t, surface, store.saved[0].Band)
	require.Len(t, store.saved[0].Values, 3)
	assert.Equal(t, 0.31, store.saved[0].Values[0])
	assert.True(t, math.IsNaN(store.saved[0].Values[1]))
	assert.Equal(t, 0.28, store.saved[0].Values[2])

	assert.Equal(t, rootzone, store.saved[1].Band)
	require.Len(t, store.saved[1].Values, 3)
	assert.Equal(t, 0.4, store.saved[1].Values[0])
	assert.True(t, math.IsNaN(store.saved[1].Values[1]))
	assert.Equal(t, 0.5, store.saved[1].Values[2])

	require.Len(t, notifier.events, 2)
	assert.Equal(t, "2016-01-01", notifier.events[0].Date)
	assert.Equal(t, "sm_surface", notifier.events[0].Band)
	assert.Equal(t, 3, notifier.events[0].Rows)
	assert.Equal(t, "data/2016-01-01_sm_surface.npy", notifier.events[0].Path)
}

func TestJob_Run_SkipsInvalidDates(t *testing.T) {
	// February 2017 enumerated through day 31: only the 28th exists.
	opts := testOptions(domain.Range{
		YearStart: 2017, YearEnd: 2017,
		MonthStart: 2, MonthEnd: 2,
		DayStart: 28, DayEnd: 31,
	})
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2017-02-28": sampleCells(),
	}}
	store := &mockStore{}

	j := newJob(opts, fetcher, store, nil, nil)
	require.NoError(t, j.Run(context.Background()))

	// Feb 29, 30, 31 never reach the remote service.
	assert.Equal(t, []string{"2017-02-28"}, fetcher.calls)
	assert.Len(t, store.saved, 2)
}

func TestJob_Run_RemoteErrorContinues(t *testing.T) {
	opts := testOptions(domain.Range{
		YearStart: 2016, YearEnd: 2016,
		MonthStart: 1, MonthEnd: 1,
		DayStart: 1, DayEnd: 2,
	})
	fetcher := &mockFetcher{
		errs:  map[string]error{"2016-01-01": errors.New("status 500: backend error")},
		cells: map[string][]domain.CellSamples{"2016-01-02": sampleCells()},
	}
	store := &mockStore{}

	j := newJob(opts, fetcher, store, nil, nil)
	require.NoError(t, j.Run(context.Background()))

	assert.Equal(t, []string{"2016-01-01", "2016-01-02"}, fetcher.calls)
	require.Len(t, store.saved, 2)
	assert.Equal(t, domain.Date{Year: 2016, Month: 1, Day: 2}, store.saved[0].Date)
}

func TestJob_Run_NoImageSkips(t *testing.T) {
	fetcher := &mockFetcher{
		errs: map[string]error{"2016-01-01": fmt.Errorf("collection 2016-01-01: %w", domain.ErrNoImage)},
	}
	store := &mockStore{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, nil)
	require.NoError(t, j.Run(context.Background()))

	assert.Empty(t, store.saved)
	assert.Error(t, j.CheckReadiness(context.Background()))
}

func TestJob_Run_SaveErrorSkipsDate(t *testing.T) {
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
	}}
	store := &mockStore{err: errors.New("disk full")}
	notifier := &mockNotifier{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, notifier)
	require.NoError(t, j.Run(context.Background()))

	assert.Empty(t, notifier.events)
	assert.Error(t, j.CheckReadiness(context.Background()))
}

func TestJob_Run_ContextCancellation(t *testing.T) {
	fetcher := &mockFetcher{}
	store := &mockStore{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, j.Run(ctx))
	assert.Empty(t, fetcher.calls)
	assert.Empty(t, store.saved)
}

func TestJob_Run_NotifierFailureDoesNotFailDate(t *testing.T) {
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
	}}
	store := &mockStore{}
	notifier := &mockNotifier{err: errors.New("broker unreachable")}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, notifier)
	require.NoError(t, j.Run(context.Background()))

	assert.Len(t, store.saved, 2)
	assert.NoError(t, j.CheckReadiness(context.Background()))
}

func TestJob_Run_SidecarReceivesDateArrays(t *testing.T) {
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
	}}
	store := &mockStore{}
	sidecar := &mockSidecar{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, sidecar, nil)
	require.NoError(t, j.Run(context.Background()))

	require.Len(t, sidecar.dates, 1)
	assert.Equal(t, domain.Date{Year: 2016, Month: 1, Day: 1}, sidecar.dates[0])
	require.Len(t, sidecar.arrays[0], 2)
	assert.Equal(t, surface, sidecar.arrays[0][0].Band)
}

func TestJob_Run_SidecarFailureTolerated(t *testing.T) {
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
	}}
	store := &mockStore{}
	sidecar := &mockSidecar{err: errors.New("disk full")}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, sidecar, nil)
	require.NoError(t, j.Run(context.Background()))

	assert.Len(t, store.saved, 2)
	assert.NoError(t, j.CheckReadiness(context.Background()))
}

func TestJob_Run_EmptyBandStillSaved(t *testing.T) {
	// A date where no cell returned rootzone pixels still writes a
	// zero-row rootzone array.
	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": {{surface: {0.3}}},
	}}
	store := &mockStore{}

	j := newJob(testOptions(singleDay(2016, 1, 1)), fetcher, store, nil, nil)
	require.NoError(t, j.Run(context.Background()))

	require.Len(t, store.saved, 2)
	assert.Equal(t, 1, store.saved[0].Rows())
	assert.Equal(t, rootzone, store.saved[1].Band)
	assert.Equal(t, 0, store.saved[1].Rows())
}

func TestJob_Run_PacesConsecutiveQueries(t *testing.T) {
	fc := clockwork.NewFakeClock()
	pipeline.SetClock(fc)
	t.Cleanup(func() { pipeline.SetClock(nil) })

	opts := testOptions(domain.Range{
		YearStart: 2016, YearEnd: 2016,
		MonthStart: 1, MonthEnd: 1,
		DayStart: 1, DayEnd: 2,
	})
	opts.MinQueryInterval = time.Second

	fetcher := &mockFetcher{cells: map[string][]domain.CellSamples{
		"2016-01-01": sampleCells(),
		"2016-01-02": sampleCells(),
	}}
	store := &mockStore{}
	j := newJob(opts, fetcher, store, nil, nil)

	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()

	// The loop blocks on the pacing timer before the second query.
	fc.BlockUntil(1)
	fc.Advance(time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, []string{"2016-01-01", "2016-01-02"}, fetcher.calls)
	assert.Len(t, store.saved, 4)
}

func TestJob_Run_ObservesPerDateDuration(t *testing.T) {
	fetcher := &mockFetcher{
		cells: map[string][]domain.CellSamples{
			"2016-01-01": sampleCells(),
			"2016-01-02": sampleCells(),
		},
		errs: map[string]error{"2016-01-03": errors.New("service unavailable")},
	}
	metrics := observability.NewMetricsForTesting()

	opts := testOptions(domain.Range{
		YearStart: 2016, YearEnd: 2016,
		MonthStart: 1, MonthEnd: 1,
		DayStart: 1, DayEnd: 3,
	})
	j := pipeline.New(opts, fetcher, &mockStore{}, nil, nil, slog.Default(), metrics)
	require.NoError(t, j.Run(context.Background()))

	// One duration sample per fully processed date; the failed date
	// contributes none.
	var m dto.Metric
	require.NoError(t, metrics.DateDuration.Write(&m))
	assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
}
