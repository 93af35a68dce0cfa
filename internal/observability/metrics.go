package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons for the dates_skipped_total counter.
const (
	SkipInvalidDate   = "invalid_date"
	SkipRemoteError   = "remote_error"
	SkipEmptyResponse = "empty_response"
	SkipWriteError    = "write_error"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// extraction job.
type Metrics struct {
	DatesProcessed prometheus.Counter
	DatesSkipped   *prometheus.CounterVec // label: reason
	JobRunning     prometheus.Gauge

	QueryDuration prometheus.Histogram
	DateDuration  prometheus.Histogram
	CellsPerDate  prometheus.Histogram

	ArraysWritten   prometheus.Counter
	RowsWritten     prometheus.Counter
	BytesWritten    prometheus.Counter
	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all job metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		DatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "dates_processed_total",
			Help:      "Dates fully fetched, transformed, and saved.",
		}),
		DatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "dates_skipped_total",
			Help:      "Dates skipped, by reason (invalid_date, remote_error, empty_response, write_error).",
		}, []string{"reason"}),
		JobRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smap_extract",
			Name:      "job_running",
			Help:      "1 while the extraction loop is active, 0 after it finishes.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smap_extract",
			Name:      "query_duration_seconds",
			Help:      "Duration of one Earth Engine reduction request.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		DateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smap_extract",
			Name:      "date_duration_seconds",
			Help:      "Duration of one full fetch-transform-save cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CellsPerDate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smap_extract",
			Name:      "cells_per_date",
			Help:      "Grid cells returned by the reduction for one date.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500},
		}),
		ArraysWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "arrays_written_total",
			Help:      "Band arrays saved to disk.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "rows_written_total",
			Help:      "Total rows across all saved band arrays.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "bytes_written_total",
			Help:      "Total encoded bytes across all saved band arrays.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smap_extract",
			Name:      "events_published_total",
			Help:      "Completion events published to the notifier topic.",
		}),
	}

	prometheus.MustRegister(
		m.DatesProcessed,
		m.DatesSkipped,
		m.JobRunning,
		m.QueryDuration,
		m.DateDuration,
		m.CellsPerDate,
		m.ArraysWritten,
		m.RowsWritten,
		m.BytesWritten,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		DatesProcessed:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "smap_extract", Name: "dates_processed_total"}),
		DatesSkipped:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "smap_extract", Name: "dates_skipped_total"}, []string{"reason"}),
		JobRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "smap_extract", Name: "job_running"}),
		QueryDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "smap_extract", Name: "query_duration_seconds"}),
		DateDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "smap_extract", Name: "date_duration_seconds"}),
		CellsPerDate:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "smap_extract", Name: "cells_per_date"}),
		ArraysWritten:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "smap_extract", Name: "arrays_written_total"}),
		RowsWritten:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "smap_extract", Name: "rows_written_total"}),
		BytesWritten:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "smap_extract", Name: "bytes_written_total"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "smap_extract", Name: "events_published_total"}),
	}
}
