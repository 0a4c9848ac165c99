package dlq

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

const (
	highFrequencyThreshold   = 10
	multipleFailureThreshold = 5

	scaleWorkersThreshold   = 50
	storeErrorThreshold     = 10
	insufficientDataShare   = 0.40
	peakHourShare           = 0.25
	peakHourMinimumFailures = 20
)

// KindStats aggregates one error kind.
type KindStats struct {
	Count         int `json:"count"`
	DistinctUsers int `json:"distinct_users"`
}

// UserStats aggregates one user's failures.
type UserStats struct {
	Failures int      `json:"failures"`
	Kinds    []string `json:"kinds"`
}

// Analysis is a failure-pattern summary over a time window. ByCause counts
// entries by the error behind them, so exhausted retries are attributed to
// what kept failing.
type Analysis struct {
	Since   time.Time            `json:"since"`
	Total   int                  `json:"total"`
	ByKind  map[string]KindStats `json:"by_kind"`
	ByCause map[string]int       `json:"by_cause"`
	ByUser  map[string]UserStats `json:"by_user"`
	ByHour  [24]int              `json:"by_hour"`
}

// Trend flags a kind or user behaving abnormally.
type Trend struct {
	Type     string `json:"type"`
	Subject  string `json:"subject"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
}

const (
	TrendHighFrequency    = "high_frequency_error"
	TrendMultipleFailures = "multiple_failures"
)

// Analyze scans entries recorded within window.
func (s *Store) Analyze(ctx context.Context, window time.Duration) (*Analysis, error) {
	since := s.now().Add(-window)
	entries, err := s.repo.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letters: %w", err)
	}
	a := Summarize(entries)
	a.Since = since
	return a, nil
}

// Summarize groups entries by kind, user and UTC hour of day.
func Summarize(entries []*domain.DLQEntry) *Analysis {
	a := &Analysis{
		Total:   len(entries),
		ByKind:  make(map[string]KindStats),
		ByCause: make(map[string]int),
		ByUser:  make(map[string]UserStats),
	}

	kindUsers := make(map[string]map[string]struct{})
	userKinds := make(map[string]map[string]struct{})

	for _, e := range entries {
		ks := a.ByKind[e.ErrorType]
		ks.Count++
		a.ByKind[e.ErrorType] = ks
		a.ByCause[e.CauseKind()]++

		if kindUsers[e.ErrorType] == nil {
			kindUsers[e.ErrorType] = make(map[string]struct{})
		}
		kindUsers[e.ErrorType][e.UserID] = struct{}{}

		us := a.ByUser[e.UserID]
		us.Failures++
		a.ByUser[e.UserID] = us

		if userKinds[e.UserID] == nil {
			userKinds[e.UserID] = make(map[string]struct{})
		}
		userKinds[e.UserID][e.ErrorType] = struct{}{}

		a.ByHour[e.Timestamp.UTC().Hour()]++
	}

	for kind, users := range kindUsers {
		ks := a.ByKind[kind]
		ks.DistinctUsers = len(users)
		a.ByKind[kind] = ks
	}
	for user, kinds := range userKinds {
		us := a.ByUser[user]
		us.Kinds = sortedKeys(kinds)
		a.ByUser[user] = us
	}
	return a
}

// IdentifyTrending flags kinds with at least 10 entries and users with at
// least 5 failures. Output is sorted by count, descending.
func IdentifyTrending(a *Analysis) []Trend {
	var trends []Trend
	for kind, ks := range a.ByKind {
		if ks.Count >= highFrequencyThreshold {
			trends = append(trends, Trend{
				Type:     TrendHighFrequency,
				Subject:  kind,
				Count:    ks.Count,
				Severity: "medium",
			})
		}
	}
	for user, us := range a.ByUser {
		if us.Failures >= multipleFailureThreshold {
			trends = append(trends, Trend{
				Type:     TrendMultipleFailures,
				Subject:  user,
				Count:    us.Failures,
				Severity: "low",
			})
		}
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Count != trends[j].Count {
			return trends[i].Count > trends[j].Count
		}
		if trends[i].Type != trends[j].Type {
			return trends[i].Type < trends[j].Type
		}
		return trends[i].Subject < trends[j].Subject
	})
	return trends
}

// Recommend produces operational suggestions for an analysis.
func Recommend(a *Analysis) []string {
	var recs []string

	if a.Total >= scaleWorkersThreshold {
		recs = append(recs, fmt.Sprintf(
			"High failure volume (%d in window): consider scaling workers or reducing load", a.Total))
	}

	if n := a.ByCause[errkind.StoreUnavailable.Name]; n >= storeErrorThreshold {
		recs = append(recs, fmt.Sprintf(
			"%d store failures: investigate database connectivity and health", n))
	}

	if a.Total > 0 {
		n := a.ByCause[errkind.InsufficientData.Name]
		if float64(n)/float64(a.Total) > insufficientDataShare {
			recs = append(recs, fmt.Sprintf(
				"Insufficient data dominates (%d of %d): review the interaction data pipeline", n, a.Total))
		}
	}

	if a.Total >= peakHourMinimumFailures {
		peak, count := 0, 0
		for h, c := range a.ByHour {
			if c > count {
				peak, count = h, c
			}
		}
		if float64(count)/float64(a.Total) > peakHourShare {
			recs = append(recs, fmt.Sprintf(
				"Failures cluster at %02d:00 UTC (%d of %d): check load or scheduled jobs at that hour",
				peak, count, a.Total))
		}
	}

	return recs
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
