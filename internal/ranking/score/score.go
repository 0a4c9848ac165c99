// Package score computes the per-post sub-scores and the composite ranking
// score. Everything here is pure; the clock is passed in.
package score

import (
	"math"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
)

const (
	// NeutralAffinity stands in for authors the user never interacted with.
	NeutralAffinity = 0.5
	// RecencyFloor is the minimum recency score for arbitrarily old posts.
	RecencyFloor = 0.2

	affinitySteepness = 5.0
	engagementScale   = 10.0
)

// AuthorAffinity scores the user's preference for authorID from their
// interaction history. ok is false when there is no interaction with the
// author, which callers must treat as "no signal", not zero.
func AuthorAffinity(
	interactions []domain.Interaction,
	authorID string,
	polarity domain.PolarityTable,
) (affinity float64, ok bool) {
	var total, positive int
	for _, in := range interactions {
		if in.AuthorID != authorID {
			continue
		}
		total++
		if polarity.IsPositive(in.ActionType) {
			positive++
		}
	}
	if total == 0 {
		return 0, false
	}

	ratio := float64(positive) / float64(total)
	return 1 / (1 + math.Exp(-affinitySteepness*(ratio-0.5))), true
}

// Engagement returns ln(favorites+reblogs+replies+1)/10.
func Engagement(post domain.CandidatePost) float64 {
	total := post.TotalEngagement()
	if total < 0 {
		total = 0
	}
	return math.Log(float64(total)+1) / engagementScale
}

// Recency decays exponentially with post age, floored at RecencyFloor.
// Posts dated in the future score as brand new.
func Recency(post domain.CandidatePost, decayDays float64, now time.Time) float64 {
	if decayDays <= 0 {
		return RecencyFloor
	}
	ageDays := now.Sub(post.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Max(RecencyFloor, math.Exp(-ageDays/decayDays))
}

// Breakdown holds the sub-scores behind one composite score.
type Breakdown struct {
	Affinity    float64
	HasAffinity bool
	Engagement  float64
	Recency     float64
	Composite   float64
}

// Engine scores posts with fixed weights and polarity.
type Engine struct {
	weights  domain.ScoringWeights
	polarity domain.PolarityTable
	now      func() time.Time
}

// NewEngine creates an engine. A nil clock defaults to time.Now and a nil
// polarity table to the default partition.
func NewEngine(
	weights domain.ScoringWeights,
	polarity domain.PolarityTable,
	now func() time.Time,
) *Engine {
	if polarity == nil {
		polarity = domain.DefaultPolarityTable()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{weights: weights, polarity: polarity, now: now}
}

// Weights returns the engine's scoring weights.
func (e *Engine) Weights() domain.ScoringWeights { return e.weights }

// WithWeights returns a copy of the engine using w.
func (e *Engine) WithWeights(w domain.ScoringWeights) *Engine {
	return &Engine{weights: w, polarity: e.polarity, now: e.now}
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// Score computes the weighted composite for post at time now.
func (e *Engine) Score(
	post domain.CandidatePost,
	interactions []domain.Interaction,
	now time.Time,
) Breakdown {
	affinity, ok := AuthorAffinity(interactions, post.AuthorID, e.polarity)
	b := Breakdown{
		Affinity:    affinity,
		HasAffinity: ok,
		Engagement:  Engagement(post),
		Recency:     Recency(post, e.weights.TimeDecayDays, now),
	}
	if !ok {
		b.Affinity = NeutralAffinity
	}
	b.Composite = e.weights.AuthorWeight*b.Affinity +
		e.weights.EngagementWeight*b.Engagement +
		e.weights.RecencyWeight*b.Recency
	return b
}

// Composite is Score(...).Composite.
func (e *Engine) Composite(
	post domain.CandidatePost,
	interactions []domain.Interaction,
	now time.Time,
) float64 {
	return e.Score(post, interactions, now).Composite
}
