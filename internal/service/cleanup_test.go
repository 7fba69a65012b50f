package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoffs []time.Time
}

func (f *fakePruner) PruneBefore(cutoff time.Time) []string {
	f.cutoffs = append(f.cutoffs, cutoff)
	return []string{"old"}
}

func TestCleaner_Run(t *testing.T) {
	uploads, results := t.TempDir(), t.TempDir()
	now := time.Now()

	stale := filepath.Join(results, "old.srt")
	fresh := filepath.Join(results, "new.srt")
	staleUpload := filepath.Join(uploads, "old.mp4")
	for _, p := range []string{stale, fresh, staleUpload} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	past := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))
	require.NoError(t, os.Chtimes(staleUpload, past, past))

	pruner := &fakePruner{}
	c := NewCleaner(24*time.Hour, pruner, uploads, results, filepath.Join(t.TempDir(), "missing"))
	c.now = func() time.Time { return now }

	removed, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, staleUpload)
	assert.FileExists(t, fresh)
	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), pruner.cutoffs[0])
}

func TestCleaner_Schedule(t *testing.T) {
	c := NewCleaner(time.Hour, nil, t.TempDir())
	cr := cron.New()

	require.NoError(t, c.Schedule(context.Background(), cr, "*/5 * * * *"))
	assert.Len(t, cr.Entries(), 1)
	assert.Error(t, c.Schedule(context.Background(), cr, "bogus"))
}
