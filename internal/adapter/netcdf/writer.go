// Package netcdf writes an optional per-date NetCDF companion file, for
// consumers that prefer self-describing files over raw .npy arrays.
package netcdf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/atkinslab/smap-extract/internal/domain"
)

// Writer emits one NetCDF classic file per date holding every band as a
// one-dimensional variable.
type Writer struct {
	dir         string
	crs         string
	scaleMeters int
	logger      *slog.Logger
}

// NewWriter creates a Writer. The directory is created on first write.
func NewWriter(dir, crs string, scaleMeters int, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, crs: crs, scaleMeters: scaleMeters, logger: logger}
}

// WriteDate writes all of a date's band arrays into one file and returns
// its path. Zero-row bands are omitted; a classic-format dimension cannot
// be empty.
func (w *Writer) WriteDate(d domain.Date, arrays []domain.BandArray) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create netcdf dir: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("processed_%04d_%02d_%02d.nc", d.Year, d.Month, d.Day))
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	written := 0
	for _, arr := range arrays {
		if arr.Rows() == 0 {
			continue
		}
		attrs, err := util.NewOrderedMap(
			[]string{"date", "crs", "scale_meters"},
			map[string]interface{}{
				"date":         arr.Date.ISO(),
				"crs":          w.crs,
				"scale_meters": int32(w.scaleMeters),
			},
		)
		if err != nil {
			cw.Close()
			return "", fmt.Errorf("build attributes: %w", err)
		}
		v := api.Variable{
			Values:     arr.Values,
			Dimensions: []string{string(arr.Band) + "_obs"},
			Attributes: attrs,
		}
		if err := cw.AddVar(string(arr.Band), v); err != nil {
			cw.Close()
			return "", fmt.Errorf("add variable %s: %w", arr.Band, err)
		}
		written++
	}

	if err := cw.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	w.logger.Info("saved netcdf sidecar", "path", path, "bands", written)
	return path, nil
}
