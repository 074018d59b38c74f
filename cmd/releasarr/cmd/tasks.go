package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/releasarr/internal/scheduler"
)

// Scheduled task names.
const (
	taskRetention   = "retention"
	taskLibrarySync = "library-sync"
)

// newScheduler registers the recurring maintenance tasks of a.
func newScheduler(a *app, log *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.DefaultConfig()).WithLogger(log)

	if a.cfg.Retention.Enabled {
		if err := sched.Add(scheduler.Task{
			Name:     taskRetention,
			Schedule: a.cfg.Retention.Schedule,
			Run:      retentionTask(a, log),
		}); err != nil {
			return nil, err
		}
	}

	if err := sched.Add(scheduler.Task{
		Name:     taskLibrarySync,
		Schedule: a.cfg.Library.SyncSchedule,
		Run:      a.library.SyncAll,
	}); err != nil {
		return nil, err
	}

	return sched, nil
}

// retentionTask enforces every source's caps, then removes poster files
// nothing references any more.
func retentionTask(a *app, log *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		results, err := a.releases.EnforceAll(ctx)
		evicted := 0
		for _, r := range results {
			evicted += len(r.EvictedIDs)
		}
		log.Info("retention pass finished",
			slog.Int("sources", len(results)),
			slog.Int("evicted", evicted))
		if err != nil {
			return fmt.Errorf("enforcing retention: %w", err)
		}

		removed, err := a.releases.SweepPosters(ctx)
		if err != nil {
			return fmt.Errorf("sweeping posters: %w", err)
		}
		if len(removed) > 0 {
			log.Info("removed unreferenced posters", slog.Int("count", len(removed)))
		}
		return nil
	}
}
