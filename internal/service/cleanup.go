package service

import (
	"context"
	"time"

	"github.com/MimeLyc/subtitle-studio/pkg/file"
	"github.com/MimeLyc/subtitle-studio/pkg/icron"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// JobPruner forgets finished jobs. *jobs.Queue implements it.
type JobPruner interface {
	PruneBefore(cutoff time.Time) []string
}

// Cleaner removes uploads and results older than the retention period,
// together with the finished jobs that produced them.
type Cleaner struct {
	dirs      []string
	retention time.Duration
	pruner    JobPruner
	now       func() time.Time
	group     singleflight.Group
}

func NewCleaner(retention time.Duration, pruner JobPruner, dirs ...string) *Cleaner {
	return &Cleaner{
		dirs:      dirs,
		retention: retention,
		pruner:    pruner,
		now:       time.Now,
	}
}

// Schedule registers the cleaner on c. Overlapping triggers share one run.
func (c *Cleaner) Schedule(ctx context.Context, cr *cron.Cron, cronExpr string) error {
	if _, err := cr.AddFunc(cronExpr, func() {
		if _, err := c.Run(ctx); err != nil {
			log.Error("Cleanup failed: %v", err)
		}
	}); err != nil {
		return err
	}

	if info, err := icron.GetTriggerInfo(cronExpr, c.now()); err == nil {
		log.Info("Cleanup scheduled (%s), next run in %s", cronExpr, info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// Run performs one cleanup pass and returns the number of files removed.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	v, err, _ := c.group.Do("cleanup", func() (any, error) {
		cutoff := c.now().Add(-c.retention)
		removed := 0
		for _, dir := range c.dirs {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			old, err := file.FindOlderThan(dir, cutoff)
			if err != nil {
				return removed, err
			}
			for _, path := range old {
				removeQuietly(path)
				removed++
			}
		}

		var pruned []string
		if c.pruner != nil {
			pruned = c.pruner.PruneBefore(cutoff)
		}
		if removed > 0 || len(pruned) > 0 {
			log.Info("Cleanup removed %d files and %d jobs older than %s", removed, len(pruned), cutoff.Format(time.RFC3339))
		}
		return removed, nil
	})
	n, _ := v.(int)
	return n, err
}
