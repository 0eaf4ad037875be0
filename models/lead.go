package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead is an enriched account ready for outreach. One row per (tag, username).
type Lead struct {
	ID             int64  `json:"id" db:"id"`
	Tag            string `json:"tag" db:"tag"`
	Username       string `json:"username" db:"username"`
	FullName       string `json:"full_name" db:"full_name"`
	Bio            string `json:"bio" db:"bio"`
	Email          string `json:"email" db:"email"`
	Phone          string `json:"phone" db:"phone"`
	Website        string `json:"website" db:"website"`
	FollowersCount int    `json:"followers_count" db:"followers_count"`
	FollowingCount int    `json:"following_count" db:"following_count"`
	PostsCount     int    `json:"posts_count" db:"posts_count"`
	IsVerified     bool   `json:"is_verified" db:"is_verified"`
	IsBusiness     bool   `json:"is_business" db:"is_business"`
	ProfilePicURL  string `json:"profile_pic_url" db:"profile_pic_url"`
	AvatarKey      string `json:"avatar_key" db:"avatar_key"`
	AvatarURL      string `json:"avatar_url" db:"avatar_url"`
	IsDuplicate    bool   `json:"is_duplicate" db:"is_duplicate"`
	Location       string `json:"location" db:"location"`

	// Source metadata recovered from the candidate row at persist time
	SourceURL       string     `json:"source_url" db:"source_url"`
	SourceExcerpt   string     `json:"source_excerpt" db:"source_excerpt"`
	SourceTimestamp *time.Time `json:"source_timestamp" db:"source_timestamp"`

	// Outreach fields
	Subject   string     `json:"subject" db:"subject"`
	EmailBody string     `json:"email_body" db:"email_body"`
	Sent      bool       `json:"sent" db:"sent"`
	SentAt    *time.Time `json:"sent_at" db:"sent_at"`

	Synced    bool      `json:"synced" db:"synced"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LeadBackup is an append-only snapshot of a Lead, taken before every update
// and after every insert. Backups survive deletion of the live row.
type LeadBackup struct {
	ID       uuid.UUID `json:"id" db:"id"`
	LeadID   int64     `json:"lead_id" db:"lead_id"`
	Tag      string    `json:"tag" db:"tag"`
	Username string    `json:"username" db:"username"`
	Snapshot []byte    `json:"snapshot" db:"snapshot"`
	TakenAt  time.Time `json:"taken_at" db:"taken_at"`
}

// MergeFrom applies incoming enrichment onto an existing lead under the
// monotonic-fill rule: a field that already holds a non-empty value is never
// overwritten by an empty one. Counts and flags take the incoming value when
// the incoming record actually carried profile data.
func (l *Lead) MergeFrom(in *Lead) {
	l.FullName = preferExisting(l.FullName, in.FullName)
	l.Bio = preferExisting(l.Bio, in.Bio)
	l.Email = preferExisting(l.Email, in.Email)
	l.Phone = preferExisting(l.Phone, in.Phone)
	l.Website = preferExisting(l.Website, in.Website)
	l.ProfilePicURL = preferExisting(l.ProfilePicURL, in.ProfilePicURL)
	l.Location = preferExisting(l.Location, in.Location)
	l.SourceURL = preferExisting(l.SourceURL, in.SourceURL)
	l.SourceExcerpt = preferExisting(l.SourceExcerpt, in.SourceExcerpt)
	if l.SourceTimestamp == nil {
		l.SourceTimestamp = in.SourceTimestamp
	}
	if in.FollowersCount > 0 {
		l.FollowersCount = in.FollowersCount
	}
	if in.FollowingCount > 0 {
		l.FollowingCount = in.FollowingCount
	}
	if in.PostsCount > 0 {
		l.PostsCount = in.PostsCount
	}
	if in.IsVerified {
		l.IsVerified = true
	}
	if in.IsBusiness {
		l.IsBusiness = true
	}
	if in.IsDuplicate {
		l.IsDuplicate = true
	}
}

// HasContact reports whether any contact channel is filled in.
func (l *Lead) HasContact() bool {
	return l.Email != "" || l.Phone != "" || l.Website != ""
}

func preferExisting(existing, incoming string) string {
	if existing != "" {
		return existing
	}
	return incoming
}
