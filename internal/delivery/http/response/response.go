package response

import (
	"time"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/profile"
	"github.com/user/redeem-checker/internal/usecase"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SubmitJobResponse struct {
	JobID             string `json:"job_id"`
	TotalCodes        int    `json:"total_codes"`
	RawCodes          int    `json:"raw_codes"`
	DuplicatesRemoved int    `json:"duplicates_removed"`
	Status            string `json:"status"`
}

type RerunResponse struct {
	Updated int64  `json:"updated"`
	Message string `json:"message"`
}

// JobResponse is a DTO for a job, mirroring entity.Job.
type JobResponse struct {
	ID                 string     `json:"id"`
	ProfileName        string     `json:"profile_name"`
	URLOverride        string     `json:"url_override,omitempty"`
	CreatedBy          string     `json:"created_by,omitempty"`
	Status             string     `json:"status"`
	TotalCodes         int        `json:"total_codes"`
	HTTPConcurrency    int        `json:"http_concurrency"`
	BrowserConcurrency int        `json:"browser_concurrency"`
	MaxRetries         int        `json:"max_retries"`
	RequestDelayMS     int        `json:"request_delay_ms"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

type ProgressResponse struct {
	Total           int            `json:"total"`
	Processed       int            `json:"processed"`
	ProgressPercent float64        `json:"progress_percent"`
	ByStatus        map[string]int `json:"by_status"`
}

type JobDetailResponse struct {
	Job      JobResponse      `json:"job"`
	Progress ProgressResponse `json:"progress"`
}

type ResultResponse struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	Reason      string     `json:"reason,omitempty"`
	FailureKind string     `json:"failure_kind,omitempty"`
	Attempts    int        `json:"attempts"`
	HTTPStatus  *int       `json:"http_status,omitempty"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	CheckedAt   *time.Time `json:"checked_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ProfileResponse struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Mode            string `json:"mode"`
	LoginRequired   bool   `json:"login_required"`
	HasSessionState bool   `json:"has_session_state"`
}

type SessionSavedResponse struct {
	Profile string `json:"profile"`
	Path    string `json:"path"`
}

func NewSubmitJobResponse(s *usecase.SubmitSummary) SubmitJobResponse {
	return SubmitJobResponse{
		JobID:             s.JobID,
		TotalCodes:        s.TotalCodes,
		RawCodes:          s.RawCodes,
		DuplicatesRemoved: s.DuplicatesRemoved,
		Status:            string(s.Status),
	}
}

func NewJobResponse(j *entity.Job) JobResponse {
	return JobResponse{
		ID:                 j.ID,
		ProfileName:        j.ProfileName,
		URLOverride:        j.URLOverride,
		CreatedBy:          j.CreatedBy,
		Status:             string(j.Status),
		TotalCodes:         j.TotalCodes,
		HTTPConcurrency:    j.HTTPConcurrency,
		BrowserConcurrency: j.BrowserConcurrency,
		MaxRetries:         j.MaxRetries,
		RequestDelayMS:     j.RequestDelayMS,
		Notes:              j.Notes,
		CreatedAt:          j.CreatedAt,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
	}
}

func NewJobsResponse(jobs []*entity.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewJobResponse(j))
	}
	return out
}

func NewProgressResponse(p entity.JobProgress) ProgressResponse {
	byStatus := make(map[string]int, len(p.ByStatus))
	for status, n := range p.ByStatus {
		byStatus[string(status)] = n
	}
	return ProgressResponse{
		Total:           p.Total,
		Processed:       p.Processed,
		ProgressPercent: p.ProgressPercent,
		ByStatus:        byStatus,
	}
}

func NewJobDetailResponse(d *usecase.JobDetail) JobDetailResponse {
	return JobDetailResponse{
		Job:      NewJobResponse(d.Job),
		Progress: NewProgressResponse(d.Progress),
	}
}

func NewResultsResponse(results []*entity.Result) []ResultResponse {
	out := make([]ResultResponse, 0, len(results))
	for _, r := range results {
		item := ResultResponse{
			ID:          r.ID,
			Code:        r.Code,
			Status:      string(r.Status),
			Source:      string(r.Source),
			Reason:      r.Reason,
			FailureKind: string(r.FailureKind),
			Attempts:    r.Attempts,
			RedirectURL: r.RedirectURL,
			CheckedAt:   r.CheckedAt,
			UpdatedAt:   r.UpdatedAt,
		}
		if r.HTTPStatus != 0 {
			status := r.HTTPStatus
			item.HTTPStatus = &status
		}
		out = append(out, item)
	}
	return out
}

func NewProfilesResponse(summaries []profile.Summary) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, ProfileResponse{
			Name:            s.Name,
			Description:     s.Description,
			Mode:            string(s.Mode),
			LoginRequired:   s.LoginRequired,
			HasSessionState: s.HasSessionState,
		})
	}
	return out
}
