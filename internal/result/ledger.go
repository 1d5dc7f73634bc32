package result

import (
	"path/filepath"
	"time"
)

// DefaultAccuracy is a fixed figure the viewer displays. Nothing measures it.
const DefaultAccuracy = 95.0

type HistoryEntry struct {
	Date     string  `json:"date"`
	Filename string  `json:"filename"`
	Duration float64 `json:"duration"`
	Chunks   int     `json:"chunks"`
}

// Ledger is the cumulative metadata document shared by every run.
type Ledger struct {
	TotalFiles        int            `json:"total_files"`
	TotalDuration     float64        `json:"total_duration"`
	ProcessingHistory []HistoryEntry `json:"processing_history"`
	AvgAccuracy       float64        `json:"avg_accuracy"`
	LastProcessed     *string        `json:"last_processed"`
}

// NewLedger returns the zero state written when no usable ledger exists.
func NewLedger() Ledger {
	return Ledger{
		ProcessingHistory: []HistoryEntry{},
		AvgAccuracy:       DefaultAccuracy,
	}
}

// UpdateLedger returns a copy of l with record accounted for. l is not
// modified.
func UpdateLedger(l Ledger, record FileRecord, now time.Time) Ledger {
	stamp := now.Format(TimeLayout)

	history := make([]HistoryEntry, 0, len(l.ProcessingHistory)+1)
	history = append(history, l.ProcessingHistory...)
	history = append(history, HistoryEntry{
		Date:     stamp,
		Filename: filepath.Base(record.Metadata.OriginalFile),
		Duration: record.Metadata.DurationSeconds,
		Chunks:   record.Metadata.TotalChunks,
	})

	next := l
	next.TotalFiles++
	next.TotalDuration += record.Metadata.DurationSeconds
	next.ProcessingHistory = history
	next.LastProcessed = &stamp
	if next.AvgAccuracy == 0 {
		next.AvgAccuracy = DefaultAccuracy
	}
	return next
}
