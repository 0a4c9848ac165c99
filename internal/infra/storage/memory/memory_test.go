package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

func TestCandidateRepo_ExcludesAndWindows(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStorage()
	s.AddPost(domain.CandidatePost{ID: "seen", CreatedAt: now})
	s.AddPost(domain.CandidatePost{ID: "new", CreatedAt: now})
	s.AddPost(domain.CandidatePost{ID: "ancient", CreatedAt: now.Add(-90 * 24 * time.Hour)})

	got, err := NewCandidateRepo(s).ListCandidates(ctx, storage.CandidateQuery{
		Since:          now.Add(-30 * 24 * time.Hour),
		ExcludePostIDs: []string{"seen"},
	})
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("expected only 'new', got %+v", got)
	}
}

func TestUserRepo_NotFound(t *testing.T) {
	_, err := NewUserRepo(NewMemoryStorage()).GetUser(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestTaskRepo_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo(NewMemoryStorage())

	task := &domain.Task{ID: "t1", State: domain.TaskStatePending}
	if err := repo.Save(ctx, task); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	task.State = domain.TaskStateSuccess

	got, err := repo.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != domain.TaskStatePending {
		t.Errorf("stored snapshot mutated: %s", got.State)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, storage.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDLQRepo_IndexAndPurge(t *testing.T) {
	ctx := context.Background()
	repo := NewDLQRepo(NewMemoryStorage())
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	entries := []*domain.DLQEntry{
		{OriginalTaskID: "a", ErrorType: "timeout", Timestamp: base},
		{OriginalTaskID: "b", ErrorType: "max_retries", Timestamp: base.Add(time.Hour)},
		{OriginalTaskID: "c", ErrorType: "timeout", Timestamp: base.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		if err := repo.Add(ctx, e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	byKind, _ := repo.ListByKind(ctx, "timeout", 0)
	if len(byKind) != 2 || byKind[0].OriginalTaskID != "c" {
		t.Errorf("expected newest-first timeout entries, got %+v", byKind)
	}

	counts, _ := repo.CountByKind(ctx)
	if counts["timeout"] != 2 || counts["max_retries"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	since, _ := repo.ListSince(ctx, base.Add(30*time.Minute))
	if len(since) != 2 || since[0].OriginalTaskID != "b" {
		t.Errorf("unexpected ListSince result: %+v", since)
	}

	removed, _ := repo.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("expected 1 remaining, got %d", n)
	}
}
