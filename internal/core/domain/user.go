package domain

import "strings"

// User is the subset of an account needed to authorize ranking requests.
type User struct {
	ID        string `json:"id"        db:"id"`
	Username  string `json:"username"  db:"username"`
	Suspended bool   `json:"suspended" db:"suspended"`
}

// AnonymousUserID is the placeholder identity for logged-out requests.
const AnonymousUserID = "anonymous"

// IsPlaceholderUser reports whether the id is an anonymous or synthetic
// placeholder that is accepted without a store lookup.
func IsPlaceholderUser(userID string) bool {
	return userID == AnonymousUserID ||
		strings.HasPrefix(userID, "anon:") ||
		strings.HasPrefix(userID, "synthetic:")
}
