package jobclient

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
)

// State is the server-reported lifecycle state of a job.
type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Terminal reports whether polling should stop. Anything other than SUCCESS
// or FAILURE (including the server's "PROCESSING") counts as pending.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Status is the body of GET /status/{id}.
type Status struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	State    State  `json:"state"`
}

// Percent returns Progress clamped to 0..100.
func (s Status) Percent() int {
	switch {
	case s.Progress < 0:
		return 0
	case s.Progress > 100:
		return 100
	default:
		return s.Progress
	}
}

// Kind distinguishes the two job flavours the server runs.
type Kind string

const (
	KindUpload    Kind = "upload"
	KindTranslate Kind = "translate"
)

// UploadRequest is the multipart payload sent to /upload.
type UploadRequest struct {
	FileName string
	Content  io.Reader
	Size     int64
	Language string
}

func (r UploadRequest) Validate() error {
	if strings.TrimSpace(r.FileName) == "" || r.Content == nil || r.Size <= 0 {
		return NewValidationError("Please select a file to upload")
	}
	return nil
}

// TranslationRequest asks the server to translate a finished upload.
type TranslationRequest struct {
	SourceFileID   string `json:"file_id"`
	TargetLanguage string `json:"target_language"`
}

func (r TranslationRequest) Validate() error {
	if strings.TrimSpace(r.SourceFileID) == "" {
		return NewValidationError("No processed file to translate, upload a file first")
	}
	lang := strings.TrimSpace(r.TargetLanguage)
	if lang == "" {
		return NewValidationError("Please select a target language")
	}
	if _, err := language.Parse(lang); err != nil {
		return NewValidationError(fmt.Sprintf("Unknown target language %q", lang))
	}
	return nil
}

// ErrValidation matches every ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// APIError is a non-2xx answer, or a 2xx answer carrying an "error" field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// genericServerError is used when the error body cannot be parsed.
func genericServerError(code int) *APIError {
	return &APIError{
		StatusCode: code,
		Message:    fmt.Sprintf("Server error (%d)", code),
	}
}
