package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Janitor periodically releases memory held by expired entries. Reads never
// depend on it: expired entries are already misses.
type Janitor struct {
	cache    *VersionCache
	cron     *cron.Cron
	schedule string
	logger   *observability.Logger
}

// NewJanitor schedules PurgeExpired on cache. schedule is a cron expression such as
// "@every 10m" or "*/5 * * * *".
func NewJanitor(cache *VersionCache, schedule string, logger *observability.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	j := &Janitor{
		cache:    cache,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger.WithField("component", "cache_janitor"),
	}
	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Run purges expired entries once
func (j *Janitor) Run() {
	defer observability.RecoverPanic(j.logger, "cache janitor")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	n, err := j.cache.PurgeExpired(ctx)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to purge expired cache entries")
		return
	}
	j.logger.WithField("purged", n).WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Purged expired cache entries")
}

// Start begins running on schedule
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("Cache janitor started")
}

// Stop stops the scheduler and waits for a running purge to finish or ctx to end
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
