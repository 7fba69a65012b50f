// Package console renders flow progress and notices to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MimeLyc/subtitle-studio/internal/notify"
	"github.com/MimeLyc/subtitle-studio/internal/theme"
)

const barWidth = 30

// ProgressView writes one line per progress change for a single UI region.
type ProgressView struct {
	mu      sync.Mutex
	out     io.Writer
	label   string
	palette theme.Palette
	linkFor func(path string) string

	active      bool
	lastMessage string
	lastPercent int
	result      string
}

// NewProgressView builds a view. linkFor turns a download path into the link
// shown to the user; nil prints the path as is.
func NewProgressView(out io.Writer, label string, palette theme.Palette, linkFor func(string) string) *ProgressView {
	if linkFor == nil {
		linkFor = func(p string) string { return p }
	}
	return &ProgressView{
		out:         out,
		label:       label,
		palette:     palette,
		linkFor:     linkFor,
		lastPercent: -1,
	}
}

func (v *ProgressView) ShowProgress() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = true
	v.result = ""
	v.lastMessage = ""
	v.lastPercent = -1
}

func (v *ProgressView) UpdateProgress(message string, percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return
	}
	if message == v.lastMessage && percent == v.lastPercent {
		return
	}
	v.lastMessage = message
	v.lastPercent = percent
	fmt.Fprintf(v.out, "%s[%s]%s %s %3d%% %s\n",
		v.palette.Accent, v.label, v.palette.Reset, Bar(percent, barWidth), percent, message)
}

func (v *ProgressView) ShowResult(downloadPath string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = false
	v.result = downloadPath
	fmt.Fprintf(v.out, "%s[%s]%s %sdone%s, download: %s\n",
		v.palette.Accent, v.label, v.palette.Reset, v.palette.Ok, v.palette.Reset, v.linkFor(downloadPath))
}

func (v *ProgressView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = false
	v.result = ""
	v.lastMessage = ""
	v.lastPercent = -1
}

// Result is the download path of the last shown result, if any.
func (v *ProgressView) Result() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

// Bar draws a fixed-width progress bar.
func Bar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// NoticePrinter prints notices as they are shown.
type NoticePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	palette theme.Palette
}

func NewNoticePrinter(out io.Writer, palette theme.Palette) *NoticePrinter {
	return &NoticePrinter{out: out, palette: palette}
}

// Attach subscribes the printer to c and returns the unsubscribe func.
func (p *NoticePrinter) Attach(c *notify.Center) func() {
	return c.Subscribe(p.Handle)
}

func (p *NoticePrinter) Handle(ev notify.Event) {
	if ev.Type != notify.EventShown {
		return
	}
	color := p.palette.Muted
	prefix := "note"
	if ev.Notice.Level == notify.LevelError {
		color = p.palette.Error
		prefix = "error"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s%s (%s): %s%s\n", color, prefix, ev.Notice.Region, ev.Notice.Message, p.palette.Reset)
}
