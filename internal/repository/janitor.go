package repository

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically drops expired validation snapshots.
type Janitor interface {
	Start(ctx context.Context)
}

type janitor struct {
	repo     TaskRepository
	logger   *slog.Logger
	interval time.Duration
}

func NewJanitor(repo TaskRepository, logger *slog.Logger, intervalSeconds int) Janitor {
	if intervalSeconds <= 0 {
		intervalSeconds = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &janitor{
		repo:     repo,
		logger:   logger,
		interval: time.Duration(intervalSeconds) * time.Second,
	}
}

func (j *janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.repo.CleanupExpired(ctx, 1000, time.Now())
			if err != nil {
				j.logger.Warn("validation retention cleanup failed", "err", err)
				continue
			}
			if removed > 0 {
				j.logger.Info("validation retention cleanup removed", "count", removed)
			}
		}
	}
}
