package domain

import "time"

// ActionType is the kind of interaction a user had with a post.
type ActionType string

const (
	ActionFavorite      ActionType = "favorite"
	ActionReblog        ActionType = "reblog"
	ActionBookmark      ActionType = "bookmark"
	ActionReply         ActionType = "reply"
	ActionMoreLike      ActionType = "more_like"
	ActionLessLike      ActionType = "less_like"
	ActionShowLess      ActionType = "show_less"
	ActionNotInterested ActionType = "not_interested"
)

// Interaction is one recorded user action. AuthorID is denormalized from the
// post so author affinity can be computed without a post lookup.
type Interaction struct {
	UserAlias  string     `json:"user_alias"  db:"user_alias"`
	PostID     string     `json:"post_id"     db:"post_id"`
	AuthorID   string     `json:"author_id"   db:"author_id"`
	ActionType ActionType `json:"action_type" db:"action_type"`
	Timestamp  time.Time  `json:"timestamp"   db:"created_at"`
}

// Polarity is the affinity direction of an action.
type Polarity int

const (
	PolarityNegative Polarity = iota
	PolarityPositive
)

// PolarityTable maps action types to their affinity polarity.
// Actions missing from the table count as negative.
type PolarityTable map[ActionType]Polarity

// DefaultPolarityTable treats favorite, reblog and bookmark as positive.
func DefaultPolarityTable() PolarityTable {
	return PolarityTable{
		ActionFavorite:      PolarityPositive,
		ActionReblog:        PolarityPositive,
		ActionBookmark:      PolarityPositive,
		ActionReply:         PolarityNegative,
		ActionMoreLike:      PolarityNegative,
		ActionLessLike:      PolarityNegative,
		ActionShowLess:      PolarityNegative,
		ActionNotInterested: PolarityNegative,
	}
}

// NewPolarityTable builds a table from explicit action lists. An empty
// positive list falls back to DefaultPolarityTable.
func NewPolarityTable(positive, negative []string) PolarityTable {
	if len(positive) == 0 {
		return DefaultPolarityTable()
	}
	t := make(PolarityTable, len(positive)+len(negative))
	for _, a := range negative {
		t[ActionType(a)] = PolarityNegative
	}
	for _, a := range positive {
		t[ActionType(a)] = PolarityPositive
	}
	return t
}

// IsPositive reports whether the action counts toward a positive ratio.
func (t PolarityTable) IsPositive(a ActionType) bool {
	return t[a] == PolarityPositive
}
