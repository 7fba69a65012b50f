package subtitle

import "time"

// Reader is the interface for reading subtitle files
type Reader interface {
	Read(path string) (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line represents a single subtitle cue
type Line struct {
	Index          int           // 1-based cue number
	StartTime      time.Duration // start time
	EndTime        time.Duration // end time
	Text           string        // subtitle text
	TranslatedText string        // translated text, written in place of Text when set
}

// File represents subtitle file
type File struct {
	Lines []Line
	// Language is an ISO 639-1 code, empty when unknown.
	Language string
	Format   string // e.g. SRT, JSON
	Path     string
}

// Texts returns the source text of every line.
func (f *File) Texts() []string {
	out := make([]string, len(f.Lines))
	for i, l := range f.Lines {
		out[i] = l.Text
	}
	return out
}
