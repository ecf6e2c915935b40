package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
)

func TestPruneWorkerRunsImmediatelyAndStops(t *testing.T) {
	repo := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	old := &domain.ActionRecord{ID: "old", UserID: "u", Kind: domain.ActionSyncLeads, CreatedAt: time.Now().Add(-72 * time.Hour)}
	if err := repo.RecordAction(ctx, old); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	done := StartPruneWorker(ctx, repo, time.Hour, 24*time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for {
		actions, err := repo.ListActions(context.Background(), "u", 10)
		if err != nil {
			t.Fatalf("ListActions failed: %v", err)
		}
		if len(actions) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("old action was not pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
