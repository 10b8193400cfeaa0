package worker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ossamaweb/auto-vid/internal/jobstore"
)

// Janitor removes work directories left behind by workers that died
// mid-job, and purges expired job rows on stores without native expiry.
type Janitor struct {
	workRoot   string
	staleAfter time.Duration
	purger     jobstore.Purger
	group      singleflight.Group
	now        func() time.Time
	log        zerolog.Logger
}

// NewJanitor creates a janitor. purger may be nil.
func NewJanitor(workRoot string, staleAfter time.Duration, purger jobstore.Purger, log zerolog.Logger) *Janitor {
	if staleAfter <= 0 {
		staleAfter = 6 * time.Hour
	}
	return &Janitor{
		workRoot:   workRoot,
		staleAfter: staleAfter,
		purger:     purger,
		now:        time.Now,
		log:        log.With().Str("component", "janitor").Logger(),
	}
}

// Schedule registers the sweep on c. Overlapping runs collapse into one.
func (j *Janitor) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		_, _, _ = j.group.Do("sweep", func() (any, error) {
			j.Sweep(ctx)
			return nil, nil
		})
	})
	return err
}

// Sweep runs one cleanup pass and returns the number of directories removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	removed := 0
	entries, err := os.ReadDir(j.workRoot)
	if err != nil && !os.IsNotExist(err) {
		j.log.Error().Err(err).Str("dir", j.workRoot).Msg("failed to list work root")
	}
	cutoff := j.now().Add(-j.staleAfter)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(j.workRoot, e.Name())
		if activeSince(dir, cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove stale work dir")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("stale work dirs removed")
	}

	if j.purger != nil {
		n, err := j.purger.PurgeExpired(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("failed to purge expired jobs")
		} else if n > 0 {
			j.log.Info().Int64("purged", n).Msg("expired jobs purged")
		}
	}
	return removed
}

// activeSince reports whether anything under dir, the dir included, was
// modified after cutoff. A running job writes into nested directories, which
// leaves the top-level mtime untouched.
func activeSince(dir string, cutoff time.Time) bool {
	active := false
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files vanishing under a live job are expected.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			active = true
			return fs.SkipAll
		}
		return nil
	})
	return active
}
