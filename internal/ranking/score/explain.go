package score

import "fmt"

// Explain names the sub-score contributing most to the composite, weighted.
func (e *Engine) Explain(b Breakdown) string {
	author := e.weights.AuthorWeight * b.Affinity
	engagement := e.weights.EngagementWeight * b.Engagement
	recency := e.weights.RecencyWeight * b.Recency

	switch {
	case b.HasAffinity && author >= engagement && author >= recency:
		if b.Affinity >= NeutralAffinity {
			return fmt.Sprintf("author you engage with (affinity %.2f)", b.Affinity)
		}
		return fmt.Sprintf("author affinity %.2f", b.Affinity)
	case engagement >= recency && engagement >= author:
		return fmt.Sprintf("popular post (engagement %.2f)", b.Engagement)
	case recency >= author:
		return fmt.Sprintf("recent post (recency %.2f)", b.Recency)
	default:
		return "new author"
	}
}
