package domain

import "time"

// CandidatePost is a post that may be recommended. Read-only input to scoring.
type CandidatePost struct {
	ID        string    `json:"id"         db:"id"`
	AuthorID  string    `json:"author_id"  db:"author_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Favorites int       `json:"favorites"  db:"favourites_count"`
	Reblogs   int       `json:"reblogs"    db:"reblogs_count"`
	Replies   int       `json:"replies"    db:"replies_count"`
	Synthetic bool      `json:"synthetic"  db:"synthetic"`
}

// TotalEngagement returns favorites + reblogs + replies.
func (p CandidatePost) TotalEngagement() int {
	return p.Favorites + p.Reblogs + p.Replies
}

// RankedPost is one scored entry of a generated ranking.
type RankedPost struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	CompositeScore float64   `json:"composite_score"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// RankingResult is the cached value of a generation run.
type RankingResult struct {
	UserID      string       `json:"user_id"`
	TaskID      string       `json:"task_id,omitempty"`
	Rankings    []RankedPost `json:"rankings"`
	Count       int          `json:"count"`
	GeneratedAt time.Time    `json:"generated_at"`
	ParamsUsed  TaskParams   `json:"params_used"`
}
