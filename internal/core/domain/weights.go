package domain

// ScoringWeights tunes how candidate posts are scored and selected.
// Weights need not sum to 1 but conventionally do.
type ScoringWeights struct {
	AuthorWeight     float64 `yaml:"author_weight"     json:"author_weight"`
	EngagementWeight float64 `yaml:"engagement_weight" json:"engagement_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"    json:"recency_weight"`
	TimeDecayDays    float64 `yaml:"time_decay_days"   json:"time_decay_days"`
	MinInteractions  int     `yaml:"min_interactions"  json:"min_interactions"`
	MaxCandidates    int     `yaml:"max_candidates"    json:"max_candidates"`
	IncludeSynthetic bool    `yaml:"include_synthetic" json:"include_synthetic"`
}

// DefaultScoringWeights returns the production defaults.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		AuthorWeight:     0.4,
		EngagementWeight: 0.3,
		RecencyWeight:    0.3,
		TimeDecayDays:    7,
		MinInteractions:  0,
		MaxCandidates:    100,
		IncludeSynthetic: false,
	}
}
