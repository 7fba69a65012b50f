package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MimeLyc/subtitle-studio/internal/notify"
	"github.com/MimeLyc/subtitle-studio/internal/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{percent: 0, want: "[..........]"},
		{percent: 30, want: "[###.......]"},
		{percent: 100, want: "[##########]"},
		{percent: 150, want: "[##########]"},
		{percent: -5, want: "[..........]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bar(tt.percent, 10))
	}
}

func TestProgressView_Lifecycle(t *testing.T) {
	var buf bytes.Buffer
	v := NewProgressView(&buf, "upload", theme.Plain, func(p string) string {
		return "http://server" + p
	})

	v.UpdateProgress("ignored before show", 5)
	assert.Empty(t, buf.String())

	v.ShowProgress()
	v.UpdateProgress("Extracting audio", 30)
	v.UpdateProgress("Extracting audio", 30)
	v.ShowResult("/download/abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[upload]")
	assert.Contains(t, lines[0], " 30% Extracting audio")
	assert.Equal(t, "[upload] done, download: http://server/download/abc", lines[1])
	assert.Equal(t, "/download/abc", v.Result())

	v.Reset()
	assert.Empty(t, v.Result())
}

func TestNoticePrinter(t *testing.T) {
	var buf bytes.Buffer
	center := notify.NewCenter(0)
	defer center.Close()

	p := NewNoticePrinter(&buf, theme.Plain)
	detach := p.Attach(center)

	center.Error("upload", "Upload failed: boom")
	center.Show("translation", notify.LevelInfo, "Starting")
	center.Dismiss("upload")
	detach()
	center.Error("upload", "not printed")

	assert.Equal(t,
		"error (upload): Upload failed: boom\nnote (translation): Starting\n",
		buf.String())
}

func TestNoticePrinter_UsesPalette(t *testing.T) {
	var buf bytes.Buffer
	palette := theme.Dark.Palette()
	p := NewNoticePrinter(&buf, palette)

	p.Handle(notify.Event{Type: notify.EventShown, Notice: notify.Notice{Region: "upload", Level: notify.LevelError, Message: "x"}})
	assert.True(t, strings.HasPrefix(buf.String(), palette.Error))
	assert.True(t, strings.HasSuffix(buf.String(), palette.Reset+"\n"))
}
