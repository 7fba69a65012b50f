package persistence

import "time"

// BatchCheckpoint holds the translated lines of one finished batch so an
// interrupted translation job can resume without redoing it.
type BatchCheckpoint struct {
	JobID           string
	BatchStart      int
	BatchEnd        int
	TranslatedLines []string
	UpdatedAt       time.Time
}
