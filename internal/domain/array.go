package domain

import "math"

// Band names a measurement channel in the raster dataset,
// e.g. "sm_surface" or "sm_rootzone".
type Band string

// CellSamples holds the pixel lists the server-side reducer returned for one
// grid cell, keyed by band. A cell that returned nothing for a band simply
// has no entry.
type CellSamples map[Band][]float64

// BandArray is the one-column array persisted per (date, band): every pixel
// observation across all grid cells, in grid order, sentinel already
// replaced by NaN.
type BandArray struct {
	Date   Date
	Band   Band
	Values []float64
}

// Rows returns N for the (N, 1) array shape.
func (a BandArray) Rows() int { return len(a.Values) }

// Concatenate flattens per-cell samples into one column per band,
// preserving grid order. Cells missing a band contribute nothing.
func Concatenate(cells []CellSamples, bands []Band) map[Band][]float64 {
	out := make(map[Band][]float64, len(bands))
	for _, b := range bands {
		out[b] = []float64{}
	}
	for _, cell := range cells {
		for _, b := range bands {
			out[b] = append(out[b], cell[b]...)
		}
	}
	return out
}

// ReplaceSentinel returns a copy of values with every exact match of the
// fill value replaced by NaN. The input slice is not modified.
func ReplaceSentinel(values []float64, fill float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == fill {
			out[i] = math.NaN()
		} else {
			out[i] = v
		}
	}
	return out
}
