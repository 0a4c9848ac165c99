// Package selector filters, scores and orders candidate posts for a user.
package selector

import (
	"sort"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/ranking/score"
)

// Selector ranks candidates with a score.Engine. It holds no per-call state.
type Selector struct {
	engine *score.Engine
}

// New creates a selector backed by engine.
func New(engine *score.Engine) *Selector {
	return &Selector{engine: engine}
}

type scored struct {
	post      domain.CandidatePost
	breakdown score.Breakdown
}

// Select returns the ranked list for userID using the engine's weights.
func (s *Selector) Select(
	userID string,
	candidates []domain.CandidatePost,
	interactions []domain.Interaction,
	now time.Time,
) []domain.RankedPost {
	return s.SelectWith(userID, candidates, interactions, s.engine.Weights(), now)
}

// SelectWith ranks candidates under explicit weights:
//  1. drop synthetic posts unless IncludeSynthetic
//  2. drop posts whose author has fewer than MinInteractions interactions
//  3. score, sort by composite desc, then newer CreatedAt, then ID
//  4. truncate to MaxCandidates
func (s *Selector) SelectWith(
	userID string,
	candidates []domain.CandidatePost,
	interactions []domain.Interaction,
	weights domain.ScoringWeights,
	now time.Time,
) []domain.RankedPost {
	engine := s.engine
	if weights != engine.Weights() {
		engine = engine.WithWeights(weights)
	}

	var perAuthor map[string]int
	if weights.MinInteractions > 0 {
		perAuthor = countByAuthor(userID, interactions)
	}

	items := make([]scored, 0, len(candidates))
	for _, post := range candidates {
		if post.Synthetic && !weights.IncludeSynthetic {
			continue
		}
		if perAuthor != nil && perAuthor[post.AuthorID] < weights.MinInteractions {
			continue
		}
		items = append(items, scored{
			post:      post,
			breakdown: engine.Score(post, interactions, now),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.breakdown.Composite != b.breakdown.Composite {
			return a.breakdown.Composite > b.breakdown.Composite
		}
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.post.ID < b.post.ID
	})

	if weights.MaxCandidates > 0 && len(items) > weights.MaxCandidates {
		items = items[:weights.MaxCandidates]
	}

	ranked := make([]domain.RankedPost, len(items))
	for i, it := range items {
		ranked[i] = domain.RankedPost{
			ID:             it.post.ID,
			AuthorID:       it.post.AuthorID,
			CompositeScore: it.breakdown.Composite,
			Reason:         engine.Explain(it.breakdown),
			CreatedAt:      it.post.CreatedAt,
		}
	}
	return ranked
}

// countByAuthor counts the user's interactions per author. Interactions
// belonging to other aliases are ignored.
func countByAuthor(userID string, interactions []domain.Interaction) map[string]int {
	counts := make(map[string]int)
	for _, in := range interactions {
		if in.UserAlias != "" && in.UserAlias != userID {
			continue
		}
		counts[in.AuthorID]++
	}
	return counts
}
