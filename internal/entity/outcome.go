package entity

import "strings"

// FailureKind classifies why a stage could not reach a verdict.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureTransportTimeout  FailureKind = "transport_timeout"
	FailureTransportRefused  FailureKind = "transport_refused"
	FailureTransportOther    FailureKind = "transport_other"
	FailureParse             FailureKind = "parse_failure"
	FailureNavigationTimeout FailureKind = "navigation_timeout"
	FailureElementNotFound   FailureKind = "element_not_found"
	FailureSessionSetup      FailureKind = "session_setup"
	FailureStageSkipped      FailureKind = "stage_skipped"
	FailureInternal          FailureKind = "internal"
)

var failureText = map[FailureKind]string{
	FailureTransportTimeout:  "transport timeout",
	FailureTransportRefused:  "connection refused",
	FailureTransportOther:    "transport error",
	FailureParse:             "response could not be parsed",
	FailureNavigationTimeout: "navigation timeout",
	FailureElementNotFound:   "element not found",
	FailureSessionSetup:      "session setup failed",
	FailureStageSkipped:      "stage skipped by profile configuration",
	FailureInternal:          "internal worker fault",
}

func (k FailureKind) String() string {
	if text, ok := failureText[k]; ok {
		return text
	}
	return string(k)
}

// Outcome is what a validation stage returns for a single code. It is
// folded into a Result by the orchestrator.
type Outcome struct {
	Status ResultStatus
	Source Source
	// Verdict explains the classification when the stage got a signal.
	Verdict string
	// Matched is the rule pattern that decided the verdict, if any.
	Matched string
	// Captcha marks a blocked outcome as a CAPTCHA challenge; retrying
	// cannot clear it.
	Captcha     bool
	Failure     FailureKind
	Detail      string
	Notes       []string
	Attempts    int
	HTTPStatus  int
	RedirectURL string
}

// Failed builds an error outcome of the given kind.
func Failed(source Source, kind FailureKind, detail string, attempts int) Outcome {
	return Outcome{
		Status:   ResultError,
		Source:   source,
		Failure:  kind,
		Detail:   detail,
		Attempts: attempts,
	}
}

// Skipped builds the outcome of a stage that made no attempt.
func Skipped(source Source, detail string) Outcome {
	return Outcome{
		Status:  ResultUnknown,
		Source:  source,
		Failure: FailureStageSkipped,
		Detail:  detail,
	}
}

// WithNote returns a copy of o with note appended.
func (o Outcome) WithNote(note string) Outcome {
	notes := make([]string, 0, len(o.Notes)+1)
	notes = append(notes, o.Notes...)
	o.Notes = append(notes, note)
	return o
}

// Reason renders the human-readable explanation that is stored with the
// result.
func (o Outcome) Reason() string {
	var b strings.Builder
	if o.Failure != FailureNone {
		b.WriteString(string(o.Source))
		b.WriteString(" ")
		b.WriteString(o.Failure.String())
		if o.Detail != "" {
			b.WriteString(": ")
			b.WriteString(o.Detail)
		}
	} else {
		b.WriteString(o.Verdict)
	}
	for _, note := range o.Notes {
		b.WriteString("; ")
		b.WriteString(note)
	}
	return b.String()
}
