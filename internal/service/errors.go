package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrParse
	ErrExtract
	ErrTranscribe
	ErrTranslation
	ErrValidation
	ErrConfig
	ErrUnknown
)

// Error is a pipeline failure. Its message is what clients see in the job
// status; Detail adds the type and context for logs.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Detail renders the error with its type and context.
func (e *Error) Detail() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrParse:
		return "Parse"
	case ErrExtract:
		return "Extract"
	case ErrTranscribe:
		return "Transcribe"
	case ErrTranslation:
		return "Translation"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Advice returns a hint for operators reading the logs.
func Advice(t ErrorType) string {
	switch t {
	case ErrFileNotFound:
		return "Check that the upload finished and the results directory was not cleaned up"
	case ErrFileRead, ErrFileWrite:
		return "Check permissions and free space of the upload and results directories"
	case ErrParse:
		return "The transcript sidecar is malformed; re-upload the media to regenerate it"
	case ErrExtract:
		return "Check FFMPEG_PATH and that the uploaded file is a valid media container"
	case ErrTranscribe:
		return "Check WHISPER_PATH and WHISPER_MODEL"
	case ErrTranslation:
		return "Check LLM_API_KEY and provider status; a smaller TRANSLATE_BATCH_SIZE helps with long lines"
	case ErrValidation, ErrConfig:
		return "Check the request parameters and environment configuration"
	default:
		return "Review the detailed error"
	}
}

// logFailure logs err with operator advice when it is a pipeline Error.
func logFailure(jobID string, err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		log.Error("Job %s: unknown error: %v", jobID, err)
		return
	}
	log.Error("Job %s: %s\n advice: %s", jobID, pe.Detail(), Advice(pe.Type))
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
