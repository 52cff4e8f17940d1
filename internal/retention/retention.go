// Package retention prunes old samples and expired sessions.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptix/hub/internal/store"
)

const (
	DefaultSamplesDays = 14
	DefaultInterval    = 24 * time.Hour
)

type Config struct {
	SamplesDays int           `toml:"samples_days"`
	Interval    time.Duration `toml:"interval"`
}

type Pruner struct {
	store     store.Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func New(st store.Store, cfg Config, logger *slog.Logger) *Pruner {
	if cfg.SamplesDays <= 0 {
		cfg.SamplesDays = DefaultSamplesDays
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Pruner{
		store:     st,
		retention: time.Duration(cfg.SamplesDays) * 24 * time.Hour,
		interval:  cfg.Interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Run prunes once at startup and then on every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("retention job started", "samples_retention", p.retention, "interval", p.interval)
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retention job stopped")
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes samples older than the retention period and expired
// sessions, returning the number of rows removed.
func (p *Pruner) Prune(ctx context.Context) int64 {
	deleted, err := p.store.PruneOldData(ctx, p.retention, p.now())
	if err != nil {
		p.logger.Error("failed to prune old data", "err", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("pruned old data", "rows_deleted", deleted, "samples_retention", p.retention)
	}
	return deleted
}
