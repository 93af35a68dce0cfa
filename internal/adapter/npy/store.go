// Package npy persists band arrays as NumPy .npy files, one per
// (date, band), shaped (N, 1) to match the downstream model inputs.
package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/atkinslab/smap-extract/internal/observability"
)

// Store writes band arrays under a single output directory.
type Store struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a Store. The directory is created on first save.
func NewStore(dir string, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{dir: dir, logger: logger, metrics: metrics}
}

// Filename returns the output name for one (date, band) array.
func Filename(d domain.Date, band domain.Band) string {
	return fmt.Sprintf("processed_%04d_%02d_%02d_%s_array.npy", d.Year, d.Month, d.Day, band)
}

// Save writes the array and returns its path. The file is written to a temp
// sibling and renamed, so a re-run over an unchanged dataset replaces prior
// output with identical content and readers never observe a partial file.
func (s *Store) Save(arr domain.BandArray) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(s.dir, Filename(arr.Date, arr.Band))
	tmp, err := os.CreateTemp(s.dir, ".npy-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	data := encode(arr.Values)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}

	s.metrics.BytesWritten.Add(float64(len(data)))
	s.logger.Info("saved array", "path", path, "rows", arr.Rows())
	return path, nil
}

// encode serializes values as a little-endian float64 .npy (format 1.0)
// with shape (N, 1). Written by hand because the array must keep its
// two-dimensional shape even when N is zero, which matrix-backed writers
// cannot represent.
func encode(values []float64) []byte {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, 1), }", len(values))

	// Preamble is magic(6) + version(2) + header length(2); the header is
	// space-padded so data starts on a 64-byte boundary, newline-terminated.
	const preamble = 10
	pad := 64 - (preamble+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	buf := new(bytes.Buffer)
	buf.Grow(preamble + len(header) + 8*len(values))
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)
	binary.Write(buf, binary.LittleEndian, uint16(len(header))) //nolint:errcheck // bytes.Buffer cannot fail
	buf.WriteString(header)
	binary.Write(buf, binary.LittleEndian, values) //nolint:errcheck
	return buf.Bytes()
}
