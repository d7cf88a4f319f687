package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/zipbot/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSweepSchedule = "@every 10m"
	DefaultOrphanMaxAge  = 6 * time.Hour
)

// Lister is a Store that can enumerate its blobs
type Lister interface {
	Store
	List(ctx context.Context, dir string) ([]Info, error)
}

// LivePathsFunc reports the blob paths still referenced by live sessions
type LivePathsFunc func() map[string]struct{}

// Janitor deletes staged blobs that no live session references anymore.
// Orphans appear when an upload or assembly is interrupted mid-flight.
type Janitor struct {
	store    Lister
	live     LivePathsFunc
	maxAge   time.Duration
	schedule string
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	now     func() time.Time
}

// NewJanitor creates a janitor for store
func NewJanitor(store Lister, live LivePathsFunc, schedule string, maxAge time.Duration, logger zerolog.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if maxAge <= 0 {
		maxAge = DefaultOrphanMaxAge
	}
	if live == nil {
		live = func() map[string]struct{} { return nil }
	}

	return &Janitor{
		store:    store,
		live:     live,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger.With().Str("module", "janitor").Logger(),
		now:      time.Now,
	}
}

// Start schedules periodic sweeps
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.runSweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	c.Start()

	j.cron = c
	j.running = true

	j.logger.Info().
		Str("schedule", j.schedule).
		Dur("max_age", j.maxAge).
		Msg("Blob janitor started")

	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return fmt.Errorf("janitor is not running")
	}

	<-j.cron.Stop().Done()
	j.running = false

	j.logger.Info().Msg("Blob janitor stopped")
	return nil
}

// IsRunning returns whether sweeps are scheduled
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) runSweep() {
	if _, err := j.Sweep(context.Background()); err != nil {
		j.logger.Error().Err(err).Msg("Blob sweep failed")
	}
}

// Sweep deletes unreferenced blobs older than the max age and returns how
// many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	live := j.live()
	cutoff := j.now().Add(-j.maxAge)
	removed := 0

	for _, dir := range []string{StagingDir, ArchiveDir} {
		blobs, err := j.store.List(ctx, dir)
		if err != nil {
			return removed, err
		}

		for _, blob := range blobs {
			if _, ok := live[blob.Path]; ok {
				continue
			}
			if blob.ModTime.After(cutoff) {
				continue
			}
			if err := j.store.Delete(ctx, blob.Path); err != nil {
				j.logger.Warn().Err(err).Str("path", blob.Path).Msg("Failed to delete orphaned blob")
				continue
			}
			removed++
		}
	}

	observability.RecordOrphansRemoved(removed)
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Orphaned blobs removed")
	}

	return removed, nil
}
