// Command inspect performs integrity checks across a directory of extracted
// soil moisture arrays. It verifies file naming, array shape and dtype,
// residual fill sentinels, and cross-band row consistency per date.
//
// Usage:
//
//	go run ./cmd/inspect -dir data
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/sbinet/npyio"
)

// filePattern captures year, month, day, and band from an archive filename.
var filePattern = regexp.MustCompile(`^processed_(\d{4})_(\d{2})_(\d{2})_(.+)_array\.npy$`)

// archive is one parsed .npy file.
type archive struct {
	name   string
	date   domain.Date
	band   domain.Band
	shape  []int
	values []float64
}

// phase tracks pass/fail for an inspection phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory containing processed .npy archives")
	fill := flag.Float64("fill", -9999, "fill sentinel that should have been replaced with NaN")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *fill); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, fill float64) int {
	fmt.Println("=== Soil Moisture Archive Inspection ===")
	fmt.Println()

	paths, err := filepath.Glob(filepath.Join(dir, "processed_*_array.npy"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: glob: %v\n", err)
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no processed_*_array.npy files under %s\n", dir)
		return 1
	}
	sort.Strings(paths)

	naming := &phase{name: "Phase 1: File Naming"}
	archives := loadArchives(naming, paths)

	phases := []*phase{
		naming,
		inspectShapes(archives),
		inspectValues(archives, fill),
		inspectBandConsistency(archives),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Archives: %d files, %d rows total\n", len(archives), countRows(archives))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll inspections passed.")
		return 0
	}
	fmt.Println("\nInspection FAILED.")
	return 1
}

// ── Loading ──

func loadArchives(p *phase, paths []string) []archive {
	var archives []archive
	for _, path := range paths {
		name := filepath.Base(path)
		m := filePattern.FindStringSubmatch(name)
		if m == nil {
			p.errorf("%s: name does not match processed_YYYY_MM_DD_<band>_array.npy", name)
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])

		d := domain.Date{Year: year, Month: month, Day: day}
		if err := d.Validate(); err != nil {
			p.errorf("%s: filename encodes impossible date: %v", name, err)
			continue
		}

		shape, values, err := readArchive(path)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		archives = append(archives, archive{
			name:   name,
			date:   d,
			band:   domain.Band(m[4]),
			shape:  shape,
			values: values,
		})
	}
	return archives
}

func readArchive(path string) ([]int, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if r.Header.Descr.Type != "<f8" {
		return nil, nil, fmt.Errorf("dtype %q, expected <f8", r.Header.Descr.Type)
	}
	var values []float64
	if err := r.Read(&values); err != nil {
		return nil, nil, fmt.Errorf("read data: %w", err)
	}
	return r.Header.Descr.Shape, values, nil
}

func countRows(archives []archive) int {
	n := 0
	for i := range archives {
		n += len(archives[i].values)
	}
	return n
}

// ── Phase 2: Shape Discipline ──
// Every archive must be a float64 column vector, shape (N, 1) in C order.

func inspectShapes(archives []archive) *phase {
	p := &phase{name: "Phase 2: Shape Discipline (N,1 float64)"}
	for i := range archives {
		a := &archives[i]
		if len(a.shape) != 2 || a.shape[1] != 1 {
			p.errorf("%s: shape %v, expected (N, 1)", a.name, a.shape)
			continue
		}
		if a.shape[0] != len(a.values) {
			p.errorf("%s: header claims %d rows, payload has %d", a.name, a.shape[0], len(a.values))
		}
	}
	return p
}

// ── Phase 3: Value Integrity ──
// Masked pixels must appear as NaN, never as the raw fill sentinel.

func inspectValues(archives []archive, fill float64) *phase {
	p := &phase{name: "Phase 3: Value Integrity (sentinel swept)"}
	for i := range archives {
		a := &archives[i]
		var residual, nan int
		for _, v := range a.values {
			switch {
			case v == fill:
				residual++
			case math.IsNaN(v):
				nan++
			}
		}
		if residual > 0 {
			p.errorf("%s: %d residual %g sentinel value(s), expected NaN", a.name, residual, fill)
		}
		if nan == len(a.values) && len(a.values) > 0 {
			fmt.Printf("  Note: %s is entirely NaN (%d rows)\n", a.name, nan)
		}
	}
	return p
}

// ── Phase 4: Band Consistency ──
// All bands extracted for the same date must cover the same grid cells, so
// their row counts must agree.

func inspectBandConsistency(archives []archive) *phase {
	p := &phase{name: "Phase 4: Band Consistency (rows per date)"}

	type bandRows struct {
		band domain.Band
		rows int
	}
	byDate := map[string][]bandRows{}
	for i := range archives {
		a := &archives[i]
		byDate[a.date.ISO()] = append(byDate[a.date.ISO()], bandRows{band: a.band, rows: len(a.values)})
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		bands := byDate[d]
		for _, b := range bands[1:] {
			if b.rows != bands[0].rows {
				p.errorf("%s: band %s has %d rows, band %s has %d", d, bands[0].band, bands[0].rows, b.band, b.rows)
			}
		}
	}
	return p
}
