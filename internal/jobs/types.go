package jobs

import "time"

// State is a job's lifecycle state. RUNNING is internal; clients see it as
// PENDING.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Reported maps the state onto the three values clients understand.
func (s State) Reported() State {
	if s == StateRunning {
		return StatePending
	}
	return s
}

type Kind string

const (
	KindProcess   Kind = "process"
	KindTranslate Kind = "translate"
)

type EnqueueRequest struct {
	// ID is used as the job id when set; otherwise one is generated.
	ID        string
	Kind      Kind
	DedupeKey string
	Payload   Payload
	Status    string
	Progress  int
}

type Payload struct {
	MediaFile      string `json:"media_file,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	SourceFileID   string `json:"source_file_id,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

type Job struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	DedupeKey string    `json:"dedupe_key,omitempty"`
	Payload   Payload   `json:"payload"`
	State     State     `json:"state"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reporter publishes intermediate progress for a running job.
type Reporter interface {
	Report(status string, progress int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(status string, progress int)

func (f ReporterFunc) Report(status string, progress int) {
	f(status, progress)
}

// Discard is a Reporter that drops every update.
var Discard Reporter = ReporterFunc(func(string, int) {})
