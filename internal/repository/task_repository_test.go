package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/archops/governor/pkg/domain"
)

func setupRepo(t *testing.T, now func() time.Time) (context.Context, *redis.Client, TaskRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return context.Background(), rdb, NewTaskRepository(rdb, time.UTC, now)
}

func sampleTask(id string) *domain.ValidationTask {
	return &domain.ValidationTask{
		ID:        id,
		Scope:     []domain.AgentKind{domain.KindSecurity, domain.KindData},
		Status:    domain.StatusRunning,
		Progress:  50,
		Results:   map[string]domain.Outcome{"agent-1": {AgentID: "agent-1", Kind: domain.KindSecurity, Severity: domain.SeverityNone}},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	ctx, _, repo := setupRepo(t, nil)
	task := sampleTask("v-1")
	if err := repo.Save(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "v-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusRunning || got.Progress != 50 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Scope) != 2 || got.Scope[0] != domain.KindSecurity {
		t.Fatalf("scope did not round-trip: %v", got.Scope)
	}
	if _, ok := got.Results["agent-1"]; !ok {
		t.Fatalf("results did not round-trip: %v", got.Results)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	ctx, _, repo := setupRepo(t, nil)
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveOverwritesSnapshot(t *testing.T) {
	ctx, _, repo := setupRepo(t, nil)
	task := sampleTask("v-2")
	if err := repo.Save(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}
	task.Status = domain.StatusCompleted
	task.Progress = 100
	task.Summary = &domain.Summary{TotalValidations: 1, Passed: 1}
	if err := repo.Save(ctx, task); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	got, err := repo.Get(ctx, "v-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Summary == nil || got.Summary.Passed != 1 {
		t.Fatalf("expected updated snapshot, got %+v", got)
	}
}

func TestCleanupExpiredDropsOldSnapshots(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx, rdb, repo := setupRepo(t, func() time.Time { return base })

	if err := repo.Save(ctx, sampleTask("old")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Nothing expires inside the retention window.
	n, err := repo.CleanupExpired(ctx, 100, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 removed, got %d", n)
	}

	n, err = repo.CleanupExpired(ctx, 100, base.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if _, err := repo.Get(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cleanup, got %v", err)
	}
	if card, _ := rdb.ZCard(ctx, "governor:validations:ttl").Result(); card != 0 {
		t.Fatalf("expected empty ttl index, got %d", card)
	}
}
