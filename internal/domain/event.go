package domain

import "time"

// ArchiveEvent records one saved band array. It is the payload of the
// optional completion notifier, so downstream consumers can react to new
// arrays without polling the output directory.
type ArchiveEvent struct {
	Date        string    `json:"date"` // YYYY-MM-DD
	Band        string    `json:"band"`
	Rows        int       `json:"rows"`
	Path        string    `json:"path"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewArchiveEvent builds the event for a saved array, stamping ProcessedAt
// from the package clock so tests can freeze it.
func NewArchiveEvent(arr BandArray, path string) ArchiveEvent {
	return ArchiveEvent{
		Date:        arr.Date.ISO(),
		Band:        string(arr.Band),
		Rows:        arr.Rows(),
		Path:        path,
		ProcessedAt: clock.Now().UTC(),
	}
}
