package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return Wrap(sqlx.NewDb(db, "sqlmock")), mock
}

func TestInteractionRepo_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM interactions").
		WithArgs("alice", 50).
		WillReturnRows(sqlmock.NewRows([]string{"user_alias", "post_id", "author_id", "action_type", "created_at"}).
			AddRow("alice", "p1", "bob", "favorite", ts).
			AddRow("alice", "p2", "bob", "less_like", ts.Add(-time.Hour)))

	got, err := NewInteractionRepo(db).ListByUser(context.Background(), "alice", 50)
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(got) != 2 || got[0].ActionType != domain.ActionFavorite || got[1].AuthorID != "bob" {
		t.Fatalf("unexpected rows: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCandidateRepo_ListCandidates(t *testing.T) {
	db, mock := newMockDB(t)
	since := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM posts\s+WHERE created_at >= \$1 AND NOT \(id = ANY\(\$2\)\)\s+ORDER BY created_at DESC, id ASC LIMIT \$3`).
		WithArgs(since, sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "author_id", "created_at", "favourites_count", "reblogs_count", "replies_count", "synthetic",
		}).AddRow("p9", "carol", since.Add(time.Hour), 4, 2, 1, false))

	got, err := NewCandidateRepo(db).ListCandidates(context.Background(), storage.CandidateQuery{
		UserID:         "alice",
		Since:          since,
		Limit:          100,
		ExcludePostIDs: []string{"p1", "p2"},
	})
	if err != nil {
		t.Fatalf("ListCandidates returned error: %v", err)
	}
	if len(got) != 1 || got[0].TotalEngagement() != 7 {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepo_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "suspended"}))

	_, err := NewUserRepo(db).GetUser(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDLQRepo_AddAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDLQRepo(db)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	entry := &domain.DLQEntry{
		OriginalTaskID: "task-1",
		UserID:         "alice",
		ErrorType:      "max_retries",
		ErrorMessage:   "store down",
		Attempts:       3,
		Timestamp:      ts,
		SystemContext:  domain.SystemContext{WorkerID: "w-1", RuntimeVersion: "go1.25"},
		OriginalParams: []byte(`{limit: 10`),
		Cause:          "store_unavailable",
	}

	mock.ExpectExec("INSERT INTO dead_letters").
		WithArgs("task-1", "alice", "max_retries", "store down", 3, "w-1", "go1.25", `{limit: 10`, "store_unavailable", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Add(context.Background(), entry); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	mock.ExpectQuery("FROM dead_letters WHERE original_task_id").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"original_task_id", "user_id", "error_type", "error_message", "attempts",
			"worker_id", "runtime_version", "original_params", "cause", "created_at",
		}).AddRow("task-1", "alice", "max_retries", "store down", 3, "w-1", "go1.25", `{limit: 10`, "store_unavailable", ts))

	got, err := repo.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.SystemContext.WorkerID != "w-1" || string(got.OriginalParams) != `{limit: 10` || got.Cause != "store_unavailable" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDLQRepo_CountAndPurge(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDLQRepo(db)
	cutoff := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("GROUP BY error_type").
		WillReturnRows(sqlmock.NewRows([]string{"error_type", "count"}).
			AddRow("timeout", 4).
			AddRow("invalid_user", 1))

	counts, err := repo.CountByKind(context.Background())
	if err != nil {
		t.Fatalf("CountByKind returned error: %v", err)
	}
	if counts["timeout"] != 4 || counts["invalid_user"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	mock.ExpectExec("DELETE FROM dead_letters").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan returned error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 deleted, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
