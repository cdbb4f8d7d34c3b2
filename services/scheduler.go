package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/goccy/go-json"
)

// Archiver stores an opaque blob under key before records are pruned.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// AuditRetention removes rule check rows older than the retention window,
// archiving each batch first when an Archiver is set.
type AuditRetention struct {
	checks    *RuleCheckService
	archiver  Archiver
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuditRetention(checks *RuleCheckService, archiver Archiver, retention time.Duration, logger *slog.Logger) *AuditRetention {
	return &AuditRetention{
		checks:    checks,
		archiver:  archiver,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// PruneOnce runs one retention pass and reports how many rows were removed.
// A failed archive upload leaves its batch in place for the next pass.
func (r *AuditRetention) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.retention)
	var total int64
	for {
		batch, err := r.checks.OlderThan(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("load expired rule checks: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}
		firstID, lastID := batch[0].ID, batch[len(batch)-1].ID

		if r.archiver != nil {
			body, err := json.Marshal(batch)
			if err != nil {
				return total, fmt.Errorf("encode archive batch: %w", err)
			}
			key := fmt.Sprintf("rule-checks/%s/%d-%d.json", cutoff.Format("2006-01-02"), firstID, lastID)
			if err := r.archiver.Archive(ctx, key, body); err != nil {
				return total, fmt.Errorf("archive %s: %w", key, err)
			}
		}

		n, err := r.checks.DeleteThrough(ctx, cutoff, lastID)
		if err != nil {
			return total, fmt.Errorf("delete expired rule checks: %w", err)
		}
		total += n
		if len(batch) < pruneBatchSize {
			return total, nil
		}
	}
}

// StartAuditRetention schedules PruneOnce every interval. Callers shut the
// returned scheduler down on exit.
func StartAuditRetention(ctx context.Context, r *AuditRetention, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			removed, err := r.PruneOnce(ctx)
			if err != nil {
				r.logger.Error("audit_prune_failed", "removed", removed, "err", err)
				return
			}
			if removed > 0 {
				r.logger.Info("audit_pruned", "removed", removed, "retention", r.retention)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule audit prune: %w", err)
	}

	sched.Start()
	return sched, nil
}
