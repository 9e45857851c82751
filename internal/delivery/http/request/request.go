package request

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// SubmitJobRequest is the body of POST /api/jobs. Codes may arrive as
// pasted text, CSV content, a JSON list, or any mix of them. Numeric
// parameters are clamped later, not rejected.
type SubmitJobRequest struct {
	ProfileName        string   `json:"profile_name" validate:"required,max=200"`
	URLOverride        string   `json:"url_override" validate:"omitempty,max=2048"`
	CreatedBy          string   `json:"created_by" validate:"omitempty,max=200"`
	CodesText          string   `json:"codes_text"`
	CodesCSV           string   `json:"codes_csv"`
	Codes              []string `json:"codes"`
	HTTPConcurrency    *int     `json:"http_concurrency"`
	BrowserConcurrency *int     `json:"browser_concurrency"`
	MaxRetries         *int     `json:"max_retries"`
	RequestDelayMS     *int     `json:"request_delay_ms"`
}

// Validate checks the field constraints declared in the struct tags.
func (r *SubmitJobRequest) Validate() error {
	return validate.Struct(r)
}
