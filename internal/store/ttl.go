package store

import (
	"context"
	"log/slog"
	"time"
)

// StartPruneWorker runs a background goroutine that periodically deletes
// audit entries older than retention. It stops when ctx is done.
func StartPruneWorker(ctx context.Context, repo Repository, interval, retention time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Audit prune worker started", "interval", interval, "retention", retention)

		pruneActions(ctx, repo, retention)
		for {
			select {
			case <-ticker.C:
				pruneActions(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Audit prune worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func pruneActions(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.PruneActions(ctx, retention)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Audit prune worker failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Audit prune worker removed old actions", "count", deleted)
	}
}
