package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/dlq"
)

func TestWriteReport(t *testing.T) {
	a := &dlq.Analysis{
		Since: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Total: 14,
		ByKind: map[string]dlq.KindStats{
			"invalid_user":      {Count: 2, DistinctUsers: 2},
			"store_unavailable": {Count: 12, DistinctUsers: 4},
		},
	}
	trends := []dlq.Trend{{Type: dlq.TrendHighFrequency, Subject: "store_unavailable", Count: 12, Severity: "medium"}}
	recs := []string{"Investigate store connectivity"}

	var buf bytes.Buffer
	writeReport(&buf, a, trends, recs)
	out := buf.String()

	for _, want := range []string{"2024-01-01T00:00:00Z: 14", "high_frequency_error", "Investigate store connectivity"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "store_unavailable") > strings.Index(out, "invalid_user") {
		t.Errorf("expected kinds ordered by count:\n%s", out)
	}
}

func TestWriteReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, &dlq.Analysis{ByKind: map[string]dlq.KindStats{}}, nil, nil)

	if strings.Contains(buf.String(), "TREND") || strings.Contains(buf.String(), "Recommendations") {
		t.Errorf("empty report should only print the header:\n%s", buf.String())
	}
}

func TestWriteEntries(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entries := []*domain.DLQEntry{
		{OriginalTaskID: "t1", UserID: "u1", ErrorType: "max_retries", Cause: "store_unavailable", Attempts: 3, Timestamp: at},
		{OriginalTaskID: "t2", UserID: "u2", ErrorType: "invalid_user", Attempts: 1, Timestamp: at},
	}
	counts := map[string]int{"max_retries": 4, "invalid_user": 1}

	var buf bytes.Buffer
	writeEntries(&buf, entries, counts)
	out := buf.String()

	for _, want := range []string{"store_unavailable", "2024-01-01T12:00:00Z", "Total stored: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "t1") > strings.Index(out, "t2") {
		t.Errorf("expected entries in the given order:\n%s", out)
	}
	// Entries without a cause show their own kind.
	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[2], "invalid_user") || strings.Count(lines[2], "invalid_user") != 2 {
		t.Errorf("expected kind as cause fallback, got %q", lines[2])
	}
}

func TestWriteEntry(t *testing.T) {
	e := &domain.DLQEntry{
		OriginalTaskID: "t1",
		UserID:         "u1",
		ErrorType:      "invalid_params",
		Attempts:       1,
		OriginalParams: []byte(`{limit: 5`),
	}

	var buf bytes.Buffer
	if err := writeEntry(&buf, e); err != nil {
		t.Fatalf("writeEntry failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{`"original_task_id": "t1"`, "cause: invalid_params", "params: {limit: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
