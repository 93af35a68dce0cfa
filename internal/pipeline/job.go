// Package pipeline drives the per-date extraction loop: enumerate the
// configured range, fetch the server-side reduction for each real date,
// replace the sentinel, and persist one array per band. Dates are processed
// strictly one at a time; a failed date is logged and skipped, never retried.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/atkinslab/smap-extract/internal/observability"
)

// Fetcher retrieves the per-cell reduced samples for one date.
type Fetcher interface {
	FetchDate(ctx context.Context, d domain.Date) ([]domain.CellSamples, error)
}

// ArrayStore persists one band array and returns its file path.
type ArrayStore interface {
	Save(arr domain.BandArray) (string, error)
}

// SidecarWriter writes a per-date companion file alongside the arrays.
type SidecarWriter interface {
	WriteDate(d domain.Date, arrays []domain.BandArray) (string, error)
}

// Notifier publishes a completion event for one saved array.
type Notifier interface {
	Publish(ctx context.Context, ev domain.ArchiveEvent) error
}

// Options carries the extraction parameters.
type Options struct {
	Dates     domain.Range
	Bands     []domain.Band
	FillValue float64

	// MinQueryInterval spaces consecutive remote queries; zero disables
	// pacing. Invalid dates never query, so they are not paced.
	MinQueryInterval time.Duration
}

// Job runs the extraction loop. Sidecar and notifier may be nil; those
// stages are then skipped.
type Job struct {
	opts     Options
	fetcher  Fetcher
	store    ArrayStore
	sidecar  SidecarWriter
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// clock is a package-level time source so tests can freeze pacing and the
// summary elapsed time.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// New creates a Job.
func New(opts Options, f Fetcher, store ArrayStore, sidecar SidecarWriter, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Job {
	return &Job{
		opts:     opts,
		fetcher:  f,
		store:    store,
		sidecar:  sidecar,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once at least one date has been fully
// processed.
func (j *Job) CheckReadiness(_ context.Context) error {
	if !j.ready.Load() {
		return errors.New("no dates processed yet")
	}
	return nil
}

type outcome int

const (
	dateProcessed outcome = iota
	dateSkipped
	jobStopped
)

// Run executes the loop over every (year, month, day) triple in the range.
// It returns nil both on completion and on context cancellation; per-date
// failures are logged and counted, never returned.
func (j *Job) Run(ctx context.Context) error {
	dates := j.opts.Dates.Dates()
	j.logger.Info("extraction started", "dates", len(dates), "bands", len(j.opts.Bands))
	j.metrics.JobRunning.Set(1)
	defer j.metrics.JobRunning.Set(0)

	start := clock.Now()
	var processed, skipped int
	queried := false

	for _, d := range dates {
		if ctx.Err() != nil {
			j.logger.Info("extraction stopping", "reason", ctx.Err(), "processed", processed, "skipped", skipped)
			return nil
		}

		if err := d.Validate(); err != nil {
			// Nonexistent days like Feb 30 fall out of blind range
			// enumeration; skipping them doubles as a sanity check.
			j.logger.Warn("skipping invalid date", "date", d, "error", err)
			j.metrics.DatesSkipped.WithLabelValues(observability.SkipInvalidDate).Inc()
			skipped++
			continue
		}

		if queried && !sleepWithContext(ctx, j.opts.MinQueryInterval) {
			j.logger.Info("extraction stopping", "reason", ctx.Err(), "processed", processed, "skipped", skipped)
			return nil
		}
		queried = true

		switch j.processDate(ctx, d) {
		case dateProcessed:
			processed++
		case dateSkipped:
			skipped++
		case jobStopped:
			j.logger.Info("extraction stopping", "reason", ctx.Err(), "processed", processed, "skipped", skipped)
			return nil
		}
	}

	j.logger.Info("extraction finished",
		"processed", processed,
		"skipped", skipped,
		"elapsed", clock.Since(start),
	)
	return nil
}

// processDate runs one fetch-transform-save cycle.
func (j *Job) processDate(ctx context.Context, d domain.Date) outcome {
	start := clock.Now()

	cells, err := j.fetcher.FetchDate(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return jobStopped
		}
		if errors.Is(err, domain.ErrNoImage) {
			j.logger.Warn("no image for date", "date", d, "error", err)
			j.metrics.DatesSkipped.WithLabelValues(observability.SkipEmptyResponse).Inc()
		} else {
			j.logger.Error("query failed", "date", d, "error", err)
			j.metrics.DatesSkipped.WithLabelValues(observability.SkipRemoteError).Inc()
		}
		return dateSkipped
	}
	j.metrics.CellsPerDate.Observe(float64(len(cells)))

	byBand := domain.Concatenate(cells, j.opts.Bands)

	arrays := make([]domain.BandArray, 0, len(j.opts.Bands))
	for _, band := range j.opts.Bands {
		arr := domain.BandArray{
			Date:   d,
			Band:   band,
			Values: domain.ReplaceSentinel(byBand[band], j.opts.FillValue),
		}
		path, err := j.store.Save(arr)
		if err != nil {
			j.logger.Error("save failed", "date", d, "band", band, "error", err)
			j.metrics.DatesSkipped.WithLabelValues(observability.SkipWriteError).Inc()
			return dateSkipped
		}
		j.metrics.ArraysWritten.Inc()
		j.metrics.RowsWritten.Add(float64(arr.Rows()))
		arrays = append(arrays, arr)
		j.notify(ctx, arr, path)
	}

	if j.sidecar != nil {
		if _, err := j.sidecar.WriteDate(d, arrays); err != nil {
			// The .npy arrays are already on disk; the date still counts.
			j.logger.Warn("sidecar write failed", "date", d, "error", err)
		}
	}

	elapsed := clock.Since(start)
	j.metrics.DateDuration.Observe(elapsed.Seconds())
	j.metrics.DatesProcessed.Inc()
	j.ready.Store(true)
	j.logger.Info("date processed", "date", d, "cells", len(cells), "duration", elapsed)
	return dateProcessed
}

// notify publishes a completion event. Publish failures are logged and
// swallowed; the array is safely on disk either way.
func (j *Job) notify(ctx context.Context, arr domain.BandArray, path string) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.Publish(ctx, domain.NewArchiveEvent(arr, path)); err != nil {
		j.logger.Warn("publish failed", "date", arr.Date, "band", arr.Band, "error", err)
		return
	}
	j.metrics.EventsPublished.Inc()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
