package subtitle

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Segment is one timed transcript span, times in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the JSON sidecar kept next to every generated SRT. It is the
// source for later translations.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// FromTranscript converts segments into subtitle lines.
func FromTranscript(t Transcript) *File {
	lines := make([]Line, 0, len(t.Segments))
	for i, seg := range t.Segments {
		lines = append(lines, Line{
			Index:     i + 1,
			StartTime: secondsToDuration(seg.Start),
			EndTime:   secondsToDuration(seg.End),
			Text:      seg.Text,
		})
	}
	lang := t.Language
	if lang == "" {
		lang = DetectLanguage(lines)
	}
	return &File{Lines: lines, Language: lang, Format: "JSON"}
}

// ToTranscript converts subtitle lines back into segments. Translated text
// wins over the source text.
func ToTranscript(f *File) Transcript {
	segs := make([]Segment, 0, len(f.Lines))
	for i, l := range f.Lines {
		text := l.TranslatedText
		if text == "" {
			text = l.Text
		}
		segs = append(segs, Segment{
			ID:    i,
			Start: l.StartTime.Seconds(),
			End:   l.EndTime.Seconds(),
			Text:  text,
		})
	}
	return Transcript{Language: f.Language, Segments: segs}
}

func ReadSegments(in io.Reader) (*File, error) {
	var t Transcript
	if err := json.NewDecoder(in).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return FromTranscript(t), nil
}

func ReadSegmentsFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segments file: %w", err)
	}
	defer f.Close()

	sub, err := ReadSegments(f)
	if err != nil {
		return nil, err
	}
	sub.Path = path
	return sub, nil
}

// WriteSegmentsFile stores f as an indented JSON sidecar at path.
func WriteSegmentsFile(path string, f *File) error {
	if f == nil {
		return fmt.Errorf("subtitle data is empty")
	}
	data, err := json.MarshalIndent(ToTranscript(f), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return time.Duration(math.Round(s * 1000)) * time.Millisecond
}
