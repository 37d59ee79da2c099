// Package retention purges completed tasks older than a configured
// period on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"taskdeck/pkg/config"
	"taskdeck/pkg/logger"
	"taskdeck/pkg/store"
)

// Runner executes scheduled purge passes over the task store.
type Runner struct {
	cfg    config.RetentionConfig
	cron   string
	period time.Duration
}

// New validates the retention config and returns a runner.
func New(cfg config.RetentionConfig) (*Runner, error) {
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	period, err := parsePeriod(cfg.Period)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, cron: cronExpr, period: period}, nil
}

// parsePeriod accepts Go durations plus day suffixes like "30d".
func parsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("retention period is required")
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid retention period: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid retention period: %s", s)
	}
	return d, nil
}

// Run computes the next cron tick, sleeps until it and purges. It returns
// when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	logger.Info("retention_scheduler_started", "cron", r.cron, "period", r.cfg.Period)
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(r.cron, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", r.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
			if err := r.RunOnce(ctx); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce purges every owner's completed tasks older than the period.
// Dry-run mode only reports what would be removed.
func (r *Runner) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.period).UnixNano()
	total := 0
	err := store.ScanTaskOwners(func(owner string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.cfg.DryRun {
			tasks, err := store.ListTasks(owner)
			if err != nil {
				return err
			}
			n := 0
			for _, t := range tasks {
				if t.Completed && t.CreatedTS < cutoff {
					n++
				}
			}
			if n > 0 {
				logger.Info("retention_dry_run", "owner", owner, "would_remove", n)
			}
			total += n
			return nil
		}
		removed, err := store.DeleteCompletedTasks(owner, cutoff)
		if err != nil {
			return err
		}
		total += len(removed)
		if len(removed) > 0 {
			logger.Info("retention_purged", "owner", owner, "removed", len(removed))
		}
		if r.cfg.BatchSleepMs > 0 && len(removed) >= r.cfg.BatchSize && r.cfg.BatchSize > 0 {
			select {
			case <-time.After(time.Duration(r.cfg.BatchSleepMs) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("retention_run_complete", "total", total, "dry_run", r.cfg.DryRun)
	return nil
}
