package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDate marks a (year, month, day) triple that names a nonexistent
// calendar day, such as February 30. These come from blind range enumeration
// and are skipped, not retried.
var ErrInvalidDate = errors.New("invalid calendar date")

// ErrNoImage reports that the collection holds no image for a valid date.
var ErrNoImage = errors.New("no image for date")

// Date is one calendar day of the extraction range. It may name a day that
// does not exist; Validate reports that.
type Date struct {
	Year  int
	Month int
	Day   int
}

// Validate returns a DateError wrapping ErrInvalidDate if the triple does
// not name a real calendar day.
func (d Date) Validate() error {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return &DateError{Date: d, Err: ErrInvalidDate}
	}
	// time.Date normalizes out-of-range days (Feb 30 becomes Mar 1 or 2),
	// so a round-trip mismatch means the day does not exist.
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if t.Year() != d.Year || t.Month() != time.Month(d.Month) || t.Day() != d.Day {
		return &DateError{Date: d, Err: ErrInvalidDate}
	}
	return nil
}

// ISO returns the date as YYYY-MM-DD. It formats invalid triples too, which
// is what error logs want.
func (d Date) ISO() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// NextISO returns the following day as YYYY-MM-DD, for the exclusive end of
// a one-day filter window. Only meaningful for valid dates.
func (d Date) NextISO() string {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

func (d Date) String() string { return d.ISO() }

// DateError attaches the offending date to a date-classification error.
type DateError struct {
	Date Date
	Err  error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("date %s: %v", e.Date, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

// Range holds the inclusive year, month, and day bounds of the extraction.
type Range struct {
	YearStart, YearEnd   int
	MonthStart, MonthEnd int
	DayStart, DayEnd     int
}

// Dates enumerates every (year, month, day) triple in order, including
// triples that name nonexistent days.
func (r Range) Dates() []Date {
	dates := make([]Date, 0, r.Len())
	for y := r.YearStart; y <= r.YearEnd; y++ {
		for m := r.MonthStart; m <= r.MonthEnd; m++ {
			for d := r.DayStart; d <= r.DayEnd; d++ {
				dates = append(dates, Date{Year: y, Month: m, Day: d})
			}
		}
	}
	return dates
}

// Len returns the number of triples Dates will yield.
func (r Range) Len() int {
	span := func(lo, hi int) int {
		if hi < lo {
			return 0
		}
		return hi - lo + 1
	}
	return span(r.YearStart, r.YearEnd) * span(r.MonthStart, r.MonthEnd) * span(r.DayStart, r.DayEnd)
}
