package entity

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job mirrors the `jobs` table schema.
type Job struct {
	ID                 string
	ProfileName        string
	URLOverride        string // empty when not set
	CreatedBy          string
	Status             JobStatus
	TotalCodes         int
	HTTPConcurrency    int
	BrowserConcurrency int
	MaxRetries         int
	RequestDelayMS     int
	Notes              string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// MaxNoteLength bounds job notes and result reasons when they are stored.
const MaxNoteLength = 500

// Truncate cuts s to at most MaxNoteLength bytes without splitting a rune.
func Truncate(s string) string {
	if len(s) <= MaxNoteLength {
		return s
	}
	cut := MaxNoteLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
