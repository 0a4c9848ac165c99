package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage/memory"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

// =============================================================================
// Mock Notifier
// =============================================================================

type mockNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (n *mockNotifier) Notify(ctx context.Context, a Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func newTestStore(n Notifier) *Store {
	s := NewStore(
		Config{WorkerID: "worker-1", AlertsEnabled: true},
		memory.NewDLQRepo(memory.NewMemoryStorage()),
		n,
		nil,
	)
	return s
}

// =============================================================================
// Tests
// =============================================================================

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		kind     errkind.Kind
		attempts int
		want     bool
	}{
		{errkind.InvalidUser, 1, false},
		{errkind.InvalidUser, 2, true},
		{errkind.PermissionDenied, 3, true},
		{errkind.MaxRetries, 3, true},
		{errkind.Unexpected, 1, true},
		{errkind.StoreUnavailable, 2, false},
		{errkind.Timeout, 5, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.kind, tt.attempts), func(t *testing.T) {
			if got := ShouldAlert(tt.kind, tt.attempts); got != tt.want {
				t.Errorf("ShouldAlert(%s, %d) = %v, want %v", tt.kind, tt.attempts, got, tt.want)
			}
		})
	}
}

func TestRecord_BuildsEntryAndAlerts(t *testing.T) {
	ctx := context.Background()
	n := &mockNotifier{}
	s := newTestStore(n)
	now := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	entry, err := s.Record(ctx, RecordInput{
		TaskID:   "task-1",
		UserID:   "alice",
		Kind:     errkind.MaxRetries,
		Message:  "store_unavailable: load interactions: connection refused",
		Attempts: 3,
		Params:   json.RawMessage(`{"limit":10}`),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if entry.ErrorType != "max_retries" || entry.Attempts != 3 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.SystemContext.WorkerID != "worker-1" || entry.SystemContext.RuntimeVersion != runtime.Version() {
		t.Errorf("unexpected system context: %+v", entry.SystemContext)
	}
	if !entry.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", entry.Timestamp, now)
	}
	if len(n.alerts) != 1 || !strings.Contains(n.alerts[0].Reason, "3 attempts") {
		t.Errorf("expected one retry-exhaustion alert, got %+v", n.alerts)
	}

	stored, err := s.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.ErrorMessage != entry.ErrorMessage {
		t.Errorf("stored entry mismatch: %+v", stored)
	}
}

func TestRecord_JSONShape(t *testing.T) {
	s := newTestStore(nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	entry, err := s.Record(context.Background(), RecordInput{
		TaskID: "t", UserID: "u", Kind: errkind.InvalidUser, Message: "m", Attempts: 1,
		Params: json.RawMessage(`{"limit":1}`),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	data, _ := json.Marshal(entry)
	var shape map[string]any
	_ = json.Unmarshal(data, &shape)

	for _, k := range []string{
		"original_task_id", "user_id", "error_type", "error_message",
		"attempts", "timestamp", "system_context",
	} {
		if _, ok := shape[k]; !ok {
			t.Errorf("missing key %q in %s", k, data)
		}
	}
	if len(shape) != 7 {
		t.Errorf("unexpected extra keys in %s", data)
	}
	if shape["timestamp"] != "2025-03-01T00:00:00Z" {
		t.Errorf("timestamp not ISO-8601: %v", shape["timestamp"])
	}
	sc := shape["system_context"].(map[string]any)
	if _, ok := sc["worker_id"]; !ok {
		t.Error("missing system_context.worker_id")
	}
	if _, ok := sc["runtime_version"]; !ok {
		t.Error("missing system_context.runtime_version")
	}
}

func TestRecord_NoAlertForSingleAttemptPermanent(t *testing.T) {
	n := &mockNotifier{}
	s := newTestStore(n)
	_, _ = s.Record(context.Background(), RecordInput{
		TaskID: "t", UserID: "u", Kind: errkind.InvalidUser, Attempts: 1,
	})
	if len(n.alerts) != 0 {
		t.Errorf("expected no alert, got %d", len(n.alerts))
	}
}

func TestRecord_NotifierFailureDoesNotFail(t *testing.T) {
	n := &mockNotifier{err: errors.New("webhook 500")}
	s := newTestStore(n)
	if _, err := s.Record(context.Background(), RecordInput{
		TaskID: "t", UserID: "u", Kind: errkind.Unexpected, Attempts: 1,
	}); err != nil {
		t.Fatalf("Record should succeed when notifier fails: %v", err)
	}
}

func entriesAt(kind, user string, n int, at time.Time) []*domain.DLQEntry {
	out := make([]*domain.DLQEntry, n)
	for i := range out {
		out[i] = &domain.DLQEntry{
			OriginalTaskID: fmt.Sprintf("%s-%s-%d", kind, user, i),
			UserID:         user,
			ErrorType:      kind,
			Timestamp:      at,
		}
	}
	return out
}

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 15, 0, 0, time.UTC)
	var entries []*domain.DLQEntry
	entries = append(entries, entriesAt("timeout", "alice", 3, base)...)
	entries = append(entries, entriesAt("timeout", "bob", 2, base.Add(time.Hour))...)
	entries = append(entries, entriesAt("invalid_user", "alice", 1, base.Add(2*time.Hour))...)

	a := Summarize(entries)
	if a.Total != 6 {
		t.Errorf("total = %d", a.Total)
	}
	if ks := a.ByKind["timeout"]; ks.Count != 5 || ks.DistinctUsers != 2 {
		t.Errorf("timeout stats = %+v", ks)
	}
	us := a.ByUser["alice"]
	if us.Failures != 4 || len(us.Kinds) != 2 || us.Kinds[0] != "invalid_user" {
		t.Errorf("alice stats = %+v", us)
	}
	if a.ByHour[9] != 3 || a.ByHour[10] != 2 || a.ByHour[11] != 1 {
		t.Errorf("by hour = %v", a.ByHour)
	}
}

func TestIdentifyTrending(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var entries []*domain.DLQEntry
	entries = append(entries, entriesAt("store_unavailable", "alice", 6, base)...)
	for i := 0; i < 4; i++ {
		entries = append(entries, entriesAt("store_unavailable", fmt.Sprintf("u%d", i), 1, base)...)
	}
	entries = append(entries, entriesAt("timeout", "bob", 4, base)...)

	trends := IdentifyTrending(Summarize(entries))
	if len(trends) != 2 {
		t.Fatalf("expected 2 trends, got %+v", trends)
	}
	if trends[0].Type != TrendHighFrequency || trends[0].Subject != "store_unavailable" ||
		trends[0].Severity != "medium" || trends[0].Count != 10 {
		t.Errorf("unexpected first trend: %+v", trends[0])
	}
	if trends[1].Type != TrendMultipleFailures || trends[1].Subject != "alice" {
		t.Errorf("unexpected second trend: %+v", trends[1])
	}
}

func TestRecommend(t *testing.T) {
	t.Run("quiet window", func(t *testing.T) {
		a := Summarize(entriesAt("timeout", "alice", 3, time.Now()))
		if recs := Recommend(a); len(recs) != 0 {
			t.Errorf("expected no recommendations, got %v", recs)
		}
	})

	t.Run("everything at once", func(t *testing.T) {
		peak := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
		var entries []*domain.DLQEntry
		entries = append(entries, entriesAt("insufficient_data", "a", 25, peak)...)
		entries = append(entries, entriesAt("store_unavailable", "b", 12, peak.Add(5*time.Hour))...)
		for h := 6; h < 19; h++ {
			entries = append(entries, entriesAt("timeout", "c", 1, peak.Add(time.Duration(h)*time.Hour))...)
		}

		recs := Recommend(Summarize(entries))
		joined := strings.Join(recs, "\n")
		for _, want := range []string{"scaling workers", "database", "data pipeline", "03:00 UTC"} {
			if !strings.Contains(joined, want) {
				t.Errorf("missing %q in recommendations:\n%s", want, joined)
			}
		}
	})
}

func TestAnalyze_Window(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-2 * time.Hour), now.Add(-time.Hour)} {
		s.now = func() time.Time { return at }
		_, _ = s.Record(ctx, RecordInput{TaskID: fmt.Sprint(i), UserID: "alice", Kind: errkind.Timeout, Attempts: 3})
	}
	s.now = func() time.Time { return now }

	a, err := s.Analyze(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.Total != 2 {
		t.Errorf("expected 2 entries in window, got %d", a.Total)
	}

	purged, err := s.Purge(ctx, 24*time.Hour)
	if err != nil || purged != 1 {
		t.Errorf("Purge = %d, %v", purged, err)
	}
}

func TestRecord_KeepsCause(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)

	exhausted, err := s.Record(ctx, RecordInput{
		TaskID: "t1", UserID: "alice", Kind: errkind.MaxRetries, Cause: errkind.StoreUnavailable, Attempts: 3,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if exhausted.ErrorType != "max_retries" || exhausted.Cause != "store_unavailable" {
		t.Errorf("unexpected entry: type=%s cause=%s", exhausted.ErrorType, exhausted.Cause)
	}

	direct, _ := s.Record(ctx, RecordInput{TaskID: "t2", UserID: "alice", Kind: errkind.InvalidUser, Attempts: 1})
	if direct.Cause != "invalid_user" {
		t.Errorf("cause should default to the kind, got %q", direct.Cause)
	}

	data, _ := json.Marshal(exhausted)
	if strings.Contains(string(data), "store_unavailable") {
		t.Errorf("cause must stay out of the entry JSON: %s", data)
	}
}

func TestRecommend_CountsExhaustedCauses(t *testing.T) {
	var entries []*domain.DLQEntry
	for i := range 12 {
		entries = append(entries, &domain.DLQEntry{
			OriginalTaskID: fmt.Sprint(i),
			UserID:         fmt.Sprintf("user-%d", i),
			ErrorType:      "max_retries",
			Cause:          "store_unavailable",
			Attempts:       3,
			Timestamp:      time.Date(2025, 3, 1, i, 0, 0, 0, time.UTC),
		})
	}

	a := Summarize(entries)
	if a.ByKind["max_retries"].Count != 12 || a.ByCause["store_unavailable"] != 12 {
		t.Fatalf("unexpected summary: kinds=%v causes=%v", a.ByKind, a.ByCause)
	}
	if recs := strings.Join(Recommend(a), "\n"); !strings.Contains(recs, "database") {
		t.Errorf("expected store recommendation, got:\n%s", recs)
	}
}

func TestStore_Lookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	records := []struct {
		id   string
		kind errkind.Kind
		age  time.Duration
	}{
		{"old", errkind.Timeout, 48 * time.Hour},
		{"t1", errkind.InvalidUser, 3 * time.Hour},
		{"t2", errkind.InvalidUser, 2 * time.Hour},
		{"t3", errkind.MaxRetries, time.Hour},
	}
	for _, r := range records {
		at := now.Add(-r.age)
		s.now = func() time.Time { return at }
		if _, err := s.Record(ctx, RecordInput{TaskID: r.id, UserID: "alice", Kind: r.kind, Attempts: 1}); err != nil {
			t.Fatalf("Record %s failed: %v", r.id, err)
		}
	}
	s.now = func() time.Time { return now }

	t.Run("get", func(t *testing.T) {
		e, err := s.Get(ctx, "t3")
		if err != nil || e.ErrorType != "max_retries" {
			t.Errorf("Get = %+v, %v", e, err)
		}
		if _, err := s.Get(ctx, "missing"); err == nil {
			t.Error("expected error for unknown task")
		}
	})

	t.Run("by kind newest first", func(t *testing.T) {
		entries, err := s.ByKind(ctx, "invalid_user", 10)
		if err != nil {
			t.Fatalf("ByKind failed: %v", err)
		}
		if len(entries) != 2 || entries[0].OriginalTaskID != "t2" {
			t.Errorf("unexpected entries: %+v", entries)
		}
		if limited, _ := s.ByKind(ctx, "invalid_user", 1); len(limited) != 1 {
			t.Errorf("limit ignored: %d entries", len(limited))
		}
	})

	t.Run("list window", func(t *testing.T) {
		entries, err := s.List(ctx, 24*time.Hour)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) != 3 || entries[0].OriginalTaskID != "t1" {
			t.Errorf("unexpected entries: %+v", entries)
		}
	})

	t.Run("counts", func(t *testing.T) {
		counts, err := s.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if counts["invalid_user"] != 2 || counts["timeout"] != 1 || counts["max_retries"] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}
