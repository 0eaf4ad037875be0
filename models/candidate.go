package models

import "time"

// Candidate is a discovered account under a tag, not yet enriched.
// (Tag, Username) is unique; re-discovery updates the existing row.
type Candidate struct {
	ID              int64      `json:"id" db:"id"`
	Tag             string     `json:"tag" db:"tag"`
	Username        string     `json:"username" db:"username"`
	IsDuplicate     bool       `json:"is_duplicate" db:"is_duplicate"`
	SourceTimestamp *time.Time `json:"source_timestamp" db:"source_timestamp"`
	SourceURL       string     `json:"source_url" db:"source_url"`
	SourceExcerpt   string     `json:"source_excerpt" db:"source_excerpt"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// Key returns the dedup key for this candidate. Empty tag or username still
// forms a valid (degenerate) key; persistence filters those out.
func (c *Candidate) Key() string {
	return c.Tag + "|" + c.Username
}
