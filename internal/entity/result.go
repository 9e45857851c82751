package entity

import (
	"slices"
	"time"
)

// ResultStatus is the per-code state within a job.
type ResultStatus string

const (
	ResultPending       ResultStatus = "pending"
	ResultRunning       ResultStatus = "running"
	ResultQueuedBrowser ResultStatus = "queued_browser"
	ResultValid         ResultStatus = "valid"
	ResultInvalid       ResultStatus = "invalid"
	ResultUnknown       ResultStatus = "unknown"
	ResultBlocked       ResultStatus = "blocked"
	ResultError         ResultStatus = "error"
)

// AllResultStatuses lists every status in lifecycle order.
var AllResultStatuses = []ResultStatus{
	ResultPending, ResultRunning, ResultQueuedBrowser,
	ResultValid, ResultInvalid, ResultUnknown, ResultBlocked, ResultError,
}

// IsFinal reports whether the status counts as processed.
func (s ResultStatus) IsFinal() bool {
	switch s {
	case ResultValid, ResultInvalid, ResultUnknown, ResultBlocked, ResultError:
		return true
	}
	return false
}

// IsUncertain reports whether a rerun would reprocess the code.
func (s ResultStatus) IsUncertain() bool {
	return slices.Contains(UncertainStatuses, s)
}

// ParseResultStatus validates a status name.
func ParseResultStatus(raw string) (ResultStatus, bool) {
	for _, s := range AllResultStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// UncertainStatuses are reset by a rerun and trigger browser fallback.
var UncertainStatuses = []ResultStatus{ResultUnknown, ResultBlocked, ResultError}

// Source names the stage that produced a verdict.
type Source string

const (
	SourceNone    Source = "none"
	SourceHTTP    Source = "http"
	SourceBrowser Source = "browser"
)

// Result mirrors the `results` table schema.
type Result struct {
	ID          int64
	JobID       string
	Code        string
	Status      ResultStatus
	Source      Source
	Reason      string
	FailureKind FailureKind
	Attempts    int
	HTTPStatus  int // 0 when no response was observed
	RedirectURL string
	CheckedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PendingCode is a code claimed for processing.
type PendingCode struct {
	ResultID int64
	Code     string
}
