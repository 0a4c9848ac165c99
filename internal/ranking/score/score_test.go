package score

import (
	"math"
	"testing"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
)

const eps = 1e-9

func interactionsWith(author string, actions ...domain.ActionType) []domain.Interaction {
	out := make([]domain.Interaction, 0, len(actions))
	for i, a := range actions {
		out = append(out, domain.Interaction{
			UserAlias:  "alice",
			PostID:     "p" + string(rune('a'+i)),
			AuthorID:   author,
			ActionType: a,
		})
	}
	return out
}

func TestAuthorAffinity(t *testing.T) {
	polarity := domain.DefaultPolarityTable()

	tests := []struct {
		name    string
		actions []domain.ActionType
		want    float64
		ok      bool
	}{
		{"no history", nil, 0, false},
		{"even split", []domain.ActionType{domain.ActionFavorite, domain.ActionLessLike}, 0.5, true},
		{"all positive", []domain.ActionType{domain.ActionReblog}, 1 / (1 + math.Exp(-2.5)), true},
		{"all negative", []domain.ActionType{domain.ActionShowLess}, 1 / (1 + math.Exp(2.5)), true},
		{
			"two of three",
			[]domain.ActionType{domain.ActionFavorite, domain.ActionFavorite, domain.ActionLessLike},
			1 / (1 + math.Exp(-5*(2.0/3.0-0.5))),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AuthorAffinity(interactionsWith("bob", tt.actions...), "bob", polarity)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if math.Abs(got-tt.want) > eps {
				t.Errorf("affinity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorAffinity_TwoThirdsScenario(t *testing.T) {
	in := interactionsWith("bob", domain.ActionFavorite, domain.ActionFavorite, domain.ActionLessLike)
	got, _ := AuthorAffinity(in, "bob", domain.DefaultPolarityTable())
	if math.Abs(got-0.699) > 0.001 {
		t.Errorf("expected ~0.699, got %v", got)
	}
}

func TestAuthorAffinity_IgnoresOtherAuthors(t *testing.T) {
	in := append(
		interactionsWith("bob", domain.ActionFavorite),
		interactionsWith("carol", domain.ActionNotInterested, domain.ActionNotInterested)...,
	)
	got, ok := AuthorAffinity(in, "bob", domain.DefaultPolarityTable())
	if !ok || got < 0.9 {
		t.Errorf("expected strong positive affinity for bob, got %v (ok=%v)", got, ok)
	}
}

func TestAuthorAffinity_UnknownActionIsNegative(t *testing.T) {
	in := interactionsWith("bob", domain.ActionType("boosted_twice"))
	got, ok := AuthorAffinity(in, "bob", domain.DefaultPolarityTable())
	if !ok || got > 0.5 {
		t.Errorf("unknown action should count negative, got %v", got)
	}
}

func TestAuthorAffinity_CustomPolarity(t *testing.T) {
	polarity := domain.NewPolarityTable([]string{"reply"}, []string{"favorite"})
	in := interactionsWith("bob", domain.ActionReply)
	got, _ := AuthorAffinity(in, "bob", polarity)
	if got < 0.9 {
		t.Errorf("reply configured positive, got %v", got)
	}
}

func TestEngagement(t *testing.T) {
	tests := []struct {
		fav, reb, rep int
	}{
		{0, 0, 0},
		{1, 0, 0},
		{10, 5, 3},
		{1000, 200, 50},
	}
	for _, tt := range tests {
		post := domain.CandidatePost{Favorites: tt.fav, Reblogs: tt.reb, Replies: tt.rep}
		want := math.Log(float64(tt.fav+tt.reb+tt.rep)+1) / 10
		if got := Engagement(post); math.Abs(got-want) > eps {
			t.Errorf("Engagement(%d,%d,%d) = %v, want %v", tt.fav, tt.reb, tt.rep, got, want)
		}
	}
}

func TestRecency(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("brand new", func(t *testing.T) {
		post := domain.CandidatePost{CreatedAt: now}
		if got := Recency(post, 7, now); math.Abs(got-1) > eps {
			t.Errorf("expected 1, got %v", got)
		}
	})

	t.Run("one decay window", func(t *testing.T) {
		post := domain.CandidatePost{CreatedAt: now.Add(-7 * 24 * time.Hour)}
		if got := Recency(post, 7, now); math.Abs(got-math.Exp(-1)) > eps {
			t.Errorf("expected e^-1, got %v", got)
		}
	})

	t.Run("floor", func(t *testing.T) {
		post := domain.CandidatePost{CreatedAt: now.Add(-9 * 7 * 24 * time.Hour)}
		if got := Recency(post, 7, now); got != RecencyFloor {
			t.Errorf("expected floor 0.2, got %v", got)
		}
	})

	t.Run("future post", func(t *testing.T) {
		post := domain.CandidatePost{CreatedAt: now.Add(time.Hour)}
		if got := Recency(post, 7, now); got != 1 {
			t.Errorf("expected 1 for future post, got %v", got)
		}
	})
}

func TestEngine_Composite(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(domain.DefaultScoringWeights(), nil, func() time.Time { return now })
	post := domain.CandidatePost{ID: "p1", AuthorID: "bob", CreatedAt: now, Favorites: 9}

	t.Run("unknown author uses neutral affinity", func(t *testing.T) {
		got := engine.Composite(post, nil, now)
		want := 0.4*0.5 + 0.3*math.Log(10)/10 + 0.3*1
		if math.Abs(got-want) > eps {
			t.Errorf("composite = %v, want %v", got, want)
		}
	})

	t.Run("disliked author scores below unknown", func(t *testing.T) {
		disliked := engine.Composite(post, interactionsWith("bob", domain.ActionNotInterested), now)
		unknown := engine.Composite(post, nil, now)
		if disliked >= unknown {
			t.Errorf("disliked %v should be below unknown %v", disliked, unknown)
		}
	})
}

func TestEngine_Explain(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(domain.DefaultScoringWeights(), nil, nil)

	liked := engine.Score(
		domain.CandidatePost{AuthorID: "bob", CreatedAt: now.Add(-60 * 24 * time.Hour)},
		interactionsWith("bob", domain.ActionFavorite, domain.ActionFavorite),
		now,
	)
	if got := engine.Explain(liked); got != "author you engage with (affinity 0.92)" {
		t.Errorf("unexpected reason: %q", got)
	}

	fresh := engine.Score(domain.CandidatePost{AuthorID: "x", CreatedAt: now}, nil, now)
	if got := engine.Explain(fresh); got != "recent post (recency 1.00)" {
		t.Errorf("unexpected reason: %q", got)
	}
}
