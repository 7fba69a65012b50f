package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/subtitle-studio/internal/jobs"
	"github.com/MimeLyc/subtitle-studio/internal/media"
	"github.com/MimeLyc/subtitle-studio/internal/subtitle"
	"github.com/MimeLyc/subtitle-studio/internal/transcribe"
	"github.com/MimeLyc/subtitle-studio/internal/translator"
	"github.com/MimeLyc/subtitle-studio/pkg/file"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"golang.org/x/text/language"
)

// Status strings reported while a job runs. Clients display them verbatim.
const (
	StatusQueued            = "Queued"
	StatusExtractionStarted = "Processing audio extraction"
	StatusExtractingVideo   = "Extracting audio from video file"
	StatusTranscribing      = "Transcribing audio"
	StatusCompleted         = "Completed"

	StatusTranslationStarted = "Starting translation"
	StatusTranslating        = "Translating subtitles"
	StatusTranslated         = "Translation complete"
)

// AudioExtractor converts a media file to 16kHz mono wav.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, input, output string) error
}

// Pipelines runs the processing and translation jobs of the queue.
type Pipelines struct {
	resultsDir  string
	extractor   AudioExtractor
	transcriber transcribe.Transcriber
	batcher     *translator.Batcher
	checkpoints CheckpointBackend
	reader      subtitle.Reader
	writer      subtitle.Writer
}

type Option func(*Pipelines)

// WithTranslation enables translation jobs.
func WithTranslation(b *translator.Batcher) Option {
	return func(p *Pipelines) {
		p.batcher = b
	}
}

// WithCheckpoints lets interrupted translations resume finished batches.
func WithCheckpoints(backend CheckpointBackend) Option {
	return func(p *Pipelines) {
		p.checkpoints = backend
	}
}

func NewPipelines(resultsDir string, extractor AudioExtractor, transcriber transcribe.Transcriber, opts ...Option) *Pipelines {
	p := &Pipelines{
		resultsDir:  resultsDir,
		extractor:   extractor,
		transcriber: transcriber,
		reader:      subtitle.NewReader(),
		writer:      subtitle.NewWriter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TranslationEnabled reports whether translate jobs can run.
func (p *Pipelines) TranslationEnabled() bool {
	return p.batcher != nil
}

// ResultPath is where the subtitle of a job id is written.
func (p *Pipelines) ResultPath(id string) string {
	return filepath.Join(p.resultsDir, id+".srt")
}

func (p *Pipelines) transcriptPath(id string) string {
	return filepath.Join(p.resultsDir, id+".json")
}

// loadSource prefers the segment sidecar and falls back to the SRT result.
func (p *Pipelines) loadSource(id string) (*subtitle.File, error) {
	sub, err := p.reader.Read(p.transcriptPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return p.reader.Read(p.ResultPath(id))
	}
	return sub, err
}

// Execute is the queue executor. It dispatches on the job kind.
func (p *Pipelines) Execute(ctx context.Context, job *jobs.Job, report jobs.Reporter) error {
	err := SafeExecute(func() error {
		switch job.Kind {
		case jobs.KindProcess:
			return p.ProcessMedia(ctx, job.ID, job.Payload, report)
		case jobs.KindTranslate:
			return p.TranslateSubtitles(ctx, job.ID, job.Payload, report)
		default:
			return NewError(ErrValidation, fmt.Sprintf("unknown job kind %q", job.Kind))
		}
	})
	if err != nil && ctx.Err() == nil {
		logFailure(job.ID, err)
	}
	return err
}

// ProcessMedia turns an uploaded media file into results/{id}.srt and its
// transcript sidecar. The upload and any intermediate audio are removed
// once the job ends.
func (p *Pipelines) ProcessMedia(ctx context.Context, id string, payload jobs.Payload, report jobs.Reporter) error {
	input := payload.MediaFile
	report.Report(StatusExtractionStarted, 10)

	if _, err := os.Stat(input); err != nil {
		return NewErrorWithCause(ErrFileNotFound, "uploaded file not found", err).WithContext("file", filepath.Base(input))
	}

	audio := input
	if needsConversion(input) {
		audio = file.ReplaceExt(input, ".16k.wav")
		if media.IsVideo(input) {
			report.Report(StatusExtractingVideo, 20)
		}
		if err := p.extractor.ExtractAudio(ctx, input, audio); err != nil {
			removeQuietly(audio)
			return p.abort(ctx, input, WrapError(err, ErrExtract, "audio extraction failed"))
		}
	}

	report.Report(StatusTranscribing, 40)
	sub, err := p.transcriber.Transcribe(ctx, audio, payload.SourceLanguage)
	if audio != input {
		removeQuietly(audio)
	}
	if err != nil {
		return p.abort(ctx, input, WrapError(err, ErrTranscribe, "transcription failed"))
	}

	if err := p.writeResult(id, sub); err != nil {
		return p.abort(ctx, input, err)
	}
	removeQuietly(input)

	log.Info("Processed %s into %s (%d lines, language %q)", filepath.Base(input), p.ResultPath(id), len(sub.Lines), sub.Language)
	report.Report(StatusCompleted, 100)
	return nil
}

// TranslateSubtitles translates the transcript of payload.SourceFileID into
// payload.TargetLanguage and writes results/{id}.srt.
func (p *Pipelines) TranslateSubtitles(ctx context.Context, id string, payload jobs.Payload, report jobs.Reporter) error {
	report.Report(StatusTranslationStarted, 10)

	if p.batcher == nil {
		return NewError(ErrConfig, "translation is not configured")
	}
	target, err := language.Parse(payload.TargetLanguage)
	if err != nil {
		return NewErrorWithCause(ErrValidation, "invalid target language", err).WithContext("language", payload.TargetLanguage)
	}

	source, err := p.loadSource(payload.SourceFileID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewError(ErrFileNotFound, "source transcript not found").WithContext("file_id", payload.SourceFileID)
		}
		return WrapError(err, ErrParse, "failed to read source transcript")
	}

	report.Report(StatusTranslating, 50)
	base, _ := target.Base()
	translated := source.Texts()
	if sameLanguage(source.Language, base.String()) {
		log.Info("Transcript %s is already in %s, skipping translation", payload.SourceFileID, base)
	} else {
		var checkpoints translator.CheckpointStore
		if p.checkpoints != nil {
			cps, err := newPersistentBatchCheckpointStore(ctx, p.checkpoints, id)
			if err != nil {
				log.Warn("Checkpoints unavailable for %s: %v", id, err)
			} else {
				checkpoints = cps
			}
		}

		translated, err = p.batcher.TranslateAll(ctx, source.Texts(), source.Language, target.String(), checkpoints, func(done, total int) {
			report.Report(StatusTranslating, 50+45*done/total)
		})
		if err != nil {
			return WrapError(err, ErrTranslation, "translation failed")
		}
	}

	out := &subtitle.File{Lines: make([]subtitle.Line, len(source.Lines)), Language: base.String(), Format: "SRT"}
	for i, line := range source.Lines {
		line.TranslatedText = translated[i]
		out.Lines[i] = line
	}
	if err := p.writeResult(id, out); err != nil {
		return err
	}

	log.Info("Translated %s into %s (%d lines)", payload.SourceFileID, base, len(out.Lines))
	report.Report(StatusTranslated, 100)
	return nil
}

func (p *Pipelines) writeResult(id string, sub *subtitle.File) error {
	if err := p.writer.Write(p.ResultPath(id), sub); err != nil {
		return WrapError(err, ErrFileWrite, "failed to write subtitles")
	}
	if err := subtitle.WriteSegmentsFile(p.transcriptPath(id), sub); err != nil {
		return WrapError(err, ErrFileWrite, "failed to write transcript")
	}
	return nil
}

// abort removes the upload unless the queue is shutting down, in which case
// the job resumes on the next start and still needs it.
func (p *Pipelines) abort(ctx context.Context, input string, err error) error {
	if ctx.Err() == nil {
		removeQuietly(input)
	}
	return err
}

func needsConversion(path string) bool {
	if media.IsVideo(path) || !strings.EqualFold(filepath.Ext(path), ".wav") {
		return true
	}
	return !isWhisperWav(path)
}

// isWhisperWav reports whether path is a 16kHz mono 16-bit PCM wav file,
// the only input whisper reads directly.
func isWhisperWav(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 36)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" || string(header[12:16]) != "fmt " {
		return false
	}
	format := binary.LittleEndian.Uint16(header[20:22])
	channels := binary.LittleEndian.Uint16(header[22:24])
	rate := binary.LittleEndian.Uint32(header[24:28])
	bits := binary.LittleEndian.Uint16(header[34:36])
	return format == 1 && channels == 1 && rate == 16000 && bits == 16
}

func sameLanguage(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove %s: %v", path, err)
	}
}
