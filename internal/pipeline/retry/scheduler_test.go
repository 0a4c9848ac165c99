package retry

import (
	"testing"
	"time"

	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

func TestUnjittered_Doubling(t *testing.T) {
	s := NewScheduler(Config{RandomSeed: 1})

	tests := []struct {
		kind    errkind.Kind
		attempt int
		want    time.Duration
	}{
		{errkind.StoreUnavailable, 1, 60 * time.Second},
		{errkind.StoreUnavailable, 2, 120 * time.Second},
		{errkind.StoreUnavailable, 3, 240 * time.Second},
		{errkind.StoreUnavailable, 4, 300 * time.Second},
		{errkind.StoreUnavailable, 10, 300 * time.Second},
		{errkind.CacheUnavailable, 1, 15 * time.Second},
		{errkind.CacheUnavailable, 3, 60 * time.Second},
		{errkind.Timeout, 2, 60 * time.Second},
		{errkind.InsufficientData, 2, 240 * time.Second},
		{errkind.Network, 0, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := s.Unjittered(tt.kind, tt.attempt); got != tt.want {
			t.Errorf("Unjittered(%s, %d) = %v, want %v", tt.kind, tt.attempt, got, tt.want)
		}
	}
}

func TestNextDelay_Bounds(t *testing.T) {
	s := NewScheduler(Config{RandomSeed: 42})

	for _, kind := range errkind.All {
		for attempt := 1; attempt <= 12; attempt++ {
			base := s.Unjittered(kind, attempt)
			for i := 0; i < 50; i++ {
				d := s.NextDelay(kind, attempt)
				if d < time.Duration(float64(base)*0.8) || d > time.Duration(float64(base)*1.2) {
					t.Fatalf("delay %v outside jitter band of %v", d, base)
				}
				if d > s.MaxJitteredDelay() {
					t.Fatalf("delay %v exceeds cap %v", d, s.MaxJitteredDelay())
				}
			}
		}
	}
	if s.MaxJitteredDelay() != 360*time.Second {
		t.Errorf("expected 360s cap, got %v", s.MaxJitteredDelay())
	}
}

func TestUnjittered_NonDecreasing(t *testing.T) {
	s := NewScheduler(Config{RandomSeed: 7})
	for _, kind := range errkind.All {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			d := s.Unjittered(kind, attempt)
			if d < prev {
				t.Fatalf("%s: delay decreased at attempt %d (%v < %v)", kind, attempt, d, prev)
			}
			prev = d
		}
	}
}

func TestNextDelay_SeedIsReproducible(t *testing.T) {
	a := NewScheduler(Config{RandomSeed: 99})
	b := NewScheduler(Config{RandomSeed: 99})
	for i := 1; i <= 5; i++ {
		if a.NextDelay(errkind.Network, i) != b.NextDelay(errkind.Network, i) {
			t.Fatal("same seed should produce the same jitter")
		}
	}
}

// MaxRetries 3 allows three runs in total: the budget is checked against
// the number of the next run.
func TestShouldRetry(t *testing.T) {
	s := NewScheduler(DefaultConfig())
	tests := []struct {
		attempt int
		want    bool
	}{
		{1, true},
		{2, true},
		{3, true},
		{4, false},
	}
	for _, tt := range tests {
		if got := s.ShouldRetry(tt.attempt); got != tt.want {
			t.Errorf("ShouldRetry(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
