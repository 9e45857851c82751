package entity

import "math"

// JobProgress is derived from stored result rows.
type JobProgress struct {
	Total           int
	Processed       int
	ProgressPercent float64
	ByStatus        map[ResultStatus]int
}

// NewJobProgress computes processed counts and a percentage rounded to
// two decimals.
func NewJobProgress(total int, counts map[ResultStatus]int) JobProgress {
	p := JobProgress{Total: total, ByStatus: counts}
	if p.ByStatus == nil {
		p.ByStatus = map[ResultStatus]int{}
	}
	for status, n := range p.ByStatus {
		if status.IsFinal() {
			p.Processed += n
		}
	}
	if total > 0 {
		p.ProgressPercent = math.Round(float64(p.Processed)/float64(total)*10000) / 100
	}
	return p
}
