package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

// Extractor turns media files into 16 kHz mono PCM WAV audio.
type Extractor struct {
	ffmpegCmd string
	runner    Runner
}

func NewExtractor(ffmpegCmd string, runner Runner) *Extractor {
	if ffmpegCmd == "" {
		ffmpegCmd = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Extractor{ffmpegCmd: ffmpegCmd, runner: runner}
}

// ExtractAudio writes the audio track of input to output. An output that is
// missing or empty after ffmpeg exits counts as a failure.
func (e *Extractor) ExtractAudio(ctx context.Context, input, output string) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("media file not found: %s", filepath.Base(input))
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	log.Debug("Extracting audio from %s", input)
	res, err := e.runner.Run(ctx, e.ffmpegCmd, extractAudioArgs(input, output)...)
	if err != nil {
		log.Error("FFmpeg error: %s", res.Stderr)
		return &CommandError{Command: e.ffmpegCmd, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("audio extraction failed: output file not found or empty")
	}
	return nil
}

func extractAudioArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		output,
	}
}
