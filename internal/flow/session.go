package flow

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobclient"
	"github.com/MimeLyc/subtitle-studio/internal/poller"
)

const (
	RegionUpload      = "upload"
	RegionTranslation = "translation"
)

// API is the subset of the job client a session needs.
type API interface {
	poller.StatusQuerier
	UploadFile(ctx context.Context, path, lang string) (string, error)
	Translate(ctx context.Context, req jobclient.TranslationRequest) (string, error)
}

// UploadInput is what the user picked in the upload form.
type UploadInput struct {
	Path     string
	Language string
}

func (in UploadInput) Validate() error {
	if strings.TrimSpace(in.Path) == "" {
		return jobclient.NewValidationError("Please select a file to upload")
	}
	info, err := os.Stat(in.Path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return jobclient.NewValidationError("Please select a file to upload")
	}
	return nil
}

type SessionOptions struct {
	PollInterval time.Duration
}

// Session is the state of one interactive session: one upload slot and one
// translation slot, each owned by its controller.
type Session struct {
	upload    *Controller[UploadInput]
	translate *Controller[jobclient.TranslationRequest]
}

func NewSession(api API, uploadView, translateView View, notifier Notifier, opts SessionOptions) *Session {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = poller.DefaultInterval
	}

	// A new upload supersedes the translation slot, but only once it has
	// passed validation.
	var translate *Controller[jobclient.TranslationRequest]
	upload := NewController(Config[UploadInput]{
		Name:     "upload",
		Region:   RegionUpload,
		Kind:     jobclient.KindUpload,
		Validate: UploadInput.Validate,
		Submit: func(ctx context.Context, in UploadInput) (string, error) {
			return api.UploadFile(ctx, in.Path, in.Language)
		},
		Poller: poller.New(api,
			poller.WithInterval(interval),
			poller.WithFailureMessage("Processing failed")),
		View:     uploadView,
		Notifier: notifier,
		Labels: Labels{
			Submitting:        "Uploading your file...",
			SubmittingPercent: 10,
			Submitted:         "File uploaded successfully, processing...",
			SubmittedPercent:  20,
			SubmitError:       "Upload failed: %s",
			PollError:         "Processing error: %s",
		},
		OnBegin: func() { translate.Invalidate() },
	})

	translate = NewController(Config[jobclient.TranslationRequest]{
		Name:     "translation",
		Region:   RegionTranslation,
		Kind:     jobclient.KindTranslate,
		Validate: jobclient.TranslationRequest.Validate,
		Submit:   api.Translate,
		Poller: poller.New(api,
			poller.WithInterval(interval),
			poller.WithFailureMessage("Translation failed")),
		View:     translateView,
		Notifier: notifier,
		Labels: Labels{
			Submitting:  "Starting translation...",
			Submitted:   "Translation in progress...",
			SubmitError: "Translation request failed: %s",
			PollError:   "Translation error: %s",
		},
	})

	return &Session{upload: upload, translate: translate}
}

// Upload starts a new upload. Once the input is valid, any previous upload
// and any translation of it are cancelled and their identifiers dropped. A
// rejected input leaves both slots untouched.
func (s *Session) Upload(ctx context.Context, path, lang string) *Task {
	return s.upload.Start(ctx, UploadInput{Path: path, Language: lang})
}

// Translate requests a translation of the last successfully processed
// upload. Without one, it fails validation and no request is sent.
func (s *Session) Translate(ctx context.Context, targetLanguage string) *Task {
	return s.translate.Start(ctx, jobclient.TranslationRequest{
		SourceFileID:   s.upload.Artifact(),
		TargetLanguage: targetLanguage,
	})
}

// TranslateFile requests a translation of an explicit file id.
func (s *Session) TranslateFile(ctx context.Context, fileID, targetLanguage string) *Task {
	return s.translate.Start(ctx, jobclient.TranslationRequest{
		SourceFileID:   fileID,
		TargetLanguage: targetLanguage,
	})
}

func (s *Session) UploadController() *Controller[UploadInput] {
	return s.upload
}

func (s *Session) TranslationController() *Controller[jobclient.TranslationRequest] {
	return s.translate
}
