package control

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/feedrank/internal/core/config"
	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/health"
	"github.com/vietddude/feedrank/internal/pipeline/status"
	"github.com/vietddude/feedrank/internal/ranking/cache"
)

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Worker.Concurrency = 2
	return cfg
}

func seed(app *App, userID string) {
	mem := app.Memory()
	now := time.Now()
	mem.AddUser(domain.User{ID: userID, Username: userID})
	mem.AddInteraction(domain.Interaction{
		UserAlias:  userID,
		PostID:     "p1",
		AuthorID:   "alice",
		ActionType: domain.ActionFavorite,
		Timestamp:  now.Add(-time.Hour),
	})
	mem.AddPost(domain.CandidatePost{ID: "p1", AuthorID: "alice", CreatedAt: now.Add(-2 * time.Hour)})
	mem.AddPost(domain.CandidatePost{ID: "p2", AuthorID: "alice", CreatedAt: now.Add(-30 * time.Minute), Favorites: 4})
	mem.AddPost(domain.CandidatePost{ID: "p3", AuthorID: "bob", CreatedAt: now.Add(-10 * time.Minute)})
}

func waitTerminal(t *testing.T, app *App, taskID string) *status.View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err := app.Status.Status(context.Background(), taskID)
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if view.State == domain.TaskStateSuccess || view.State == domain.TaskStateFailure {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", taskID)
	return nil
}

func startApp(t *testing.T, cfg *config.AppConfig) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func stopApp(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestApp_RanksThroughMemoryBackend(t *testing.T) {
	app := startApp(t, testConfig())
	seed(app, "u1")

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopApp(t, app)

	taskID, err := app.Status.Enqueue(context.Background(), "u1", json.RawMessage(`{"limit": 5}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	view := waitTerminal(t, app, taskID)
	if view.State != domain.TaskStateSuccess {
		t.Fatalf("expected SUCCESS, got %s (error %+v)", view.State, view.Error)
	}
	if view.ProgressPercent != 100 {
		t.Errorf("expected progress 100, got %d", view.ProgressPercent)
	}
	if view.ResultRef != cache.AsyncRankingsKey("u1") {
		t.Errorf("unexpected result ref %q", view.ResultRef)
	}
	if view.ResultCount != 2 {
		t.Errorf("expected 2 ranked posts, got %d", view.ResultCount)
	}

	cached, ok := app.Cache.Get(context.Background(), view.ResultRef)
	if !ok {
		t.Fatal("expected cached rankings")
	}
	for _, p := range cached.Rankings {
		if p.ID == "p1" {
			t.Error("interacted post should not be ranked")
		}
	}
}

func TestApp_UnknownUserIsDeadLettered(t *testing.T) {
	app := startApp(t, testConfig())

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopApp(t, app)

	taskID, err := app.Status.Enqueue(context.Background(), "ghost", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	view := waitTerminal(t, app, taskID)
	if view.State != domain.TaskStateFailure {
		t.Fatalf("expected FAILURE, got %s", view.State)
	}
	if view.Error == nil || view.Error.Kind != "invalid_user" {
		t.Fatalf("expected invalid_user error, got %+v", view.Error)
	}

	entry, err := app.DeadLetters.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected dead-letter entry: %v", err)
	}
	if entry.ErrorType != "invalid_user" {
		t.Errorf("expected invalid_user entry, got %s", entry.ErrorType)
	}
	if entry.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", entry.Attempts)
	}
}

func TestApp_Health(t *testing.T) {
	app := startApp(t, testConfig())
	defer app.Close()

	report := app.Health(context.Background())
	if report.SystemStatus != health.StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "kafka"

	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestNewApp_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	app := startApp(t, cfg)
	defer app.Close()

	taskID, err := app.Status.Enqueue(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	view, err := app.Status.Status(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.State != domain.TaskStatePending {
		t.Errorf("expected PENDING, got %s", view.State)
	}
	if !mr.Exists("queue:" + cfg.Worker.QueueName + ":jobs") {
		t.Error("expected the job to be stored in redis")
	}
}

func TestApp_RedisBackendDeadLettersMalformedParams(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	app := startApp(t, cfg)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopApp(t, app)

	taskID, err := app.Status.Enqueue(context.Background(), "u1", json.RawMessage(`{limit: 5`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	view := waitTerminal(t, app, taskID)
	if view.State != domain.TaskStateFailure {
		t.Fatalf("expected FAILURE, got %s", view.State)
	}
	if view.Error == nil || view.Error.Kind != "invalid_params" {
		t.Fatalf("expected invalid_params error, got %+v", view.Error)
	}

	entry, err := app.DeadLetters.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected dead-letter entry: %v", err)
	}
	if string(entry.OriginalParams) != `{limit: 5` {
		t.Errorf("expected original body to be kept, got %q", entry.OriginalParams)
	}
}
