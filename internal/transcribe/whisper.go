// Package transcribe runs whisper.cpp over prepared audio and converts its
// JSON output into subtitle lines.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/media"
	"github.com/MimeLyc/subtitle-studio/internal/subtitle"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

// Transcriber converts an audio file into timed subtitle lines.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*subtitle.File, error)
}

type Whisper struct {
	cmd    string
	model  string
	runner media.Runner
}

func NewWhisper(cmd, model string, runner media.Runner) *Whisper {
	if cmd == "" {
		cmd = "whisper-cli"
	}
	if runner == nil {
		runner = media.ExecRunner{}
	}
	return &Whisper{cmd: cmd, model: model, runner: runner}
}

// Transcribe runs whisper on audioPath. An empty language lets whisper detect
// it.
func (w *Whisper) Transcribe(ctx context.Context, audioPath, language string) (*subtitle.File, error) {
	if strings.TrimSpace(w.model) == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", filepath.Base(audioPath))
	}

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper workspace: %w", err)
	}
	defer os.RemoveAll(outDir)
	base := filepath.Join(outDir, "transcript")

	log.Info("Starting transcription for: %s", audioPath)
	res, err := w.runner.Run(ctx, w.cmd, whisperArgs(w.model, audioPath, base, language)...)
	if err != nil {
		return nil, &media.CommandError{Command: w.cmd, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	data, err := os.ReadFile(base + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper completed but transcript is missing: %w", err)
	}
	file, err := ParseOutput(data)
	if err != nil {
		return nil, err
	}
	if file.Language == "" {
		file.Language = normalizeLanguage(language)
	}
	log.Info("Transcription complete with %d segments", len(file.Lines))
	return file, nil
}

// output mirrors the subset of whisper.cpp's -oj format we read.
type output struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseOutput converts whisper.cpp JSON output into subtitle lines. Blank
// segments are dropped.
func ParseOutput(data []byte) (*subtitle.File, error) {
	var out output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode whisper output: %w", err)
	}

	lines := make([]subtitle.Line, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		lines = append(lines, subtitle.Line{
			Index:     len(lines) + 1,
			StartTime: time.Duration(seg.Offsets.From) * time.Millisecond,
			EndTime:   time.Duration(seg.Offsets.To) * time.Millisecond,
			Text:      text,
		})
	}

	lang := normalizeLanguage(out.Result.Language)
	if lang == "" {
		lang = subtitle.DetectLanguage(lines)
	}
	return &subtitle.File{Lines: lines, Language: lang, Format: "JSON"}, nil
}

func whisperArgs(model, audioPath, outBase, language string) []string {
	lang := normalizeLanguage(language)
	if lang == "" {
		lang = "auto"
	}
	return []string{
		"-m", model,
		"-f", audioPath,
		"-l", lang,
		"-oj",
		"-of", outBase,
	}
}

// normalizeLanguage maps "auto" and empty language to no explicit language.
func normalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "auto" {
		return ""
	}
	return lang
}
