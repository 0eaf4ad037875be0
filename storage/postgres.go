package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ig_leadgen/models"
)

// PostgresStore mirrors leads into a shared Postgres instance for the team
// dashboards. SQLite stays the source of truth; rows arrive here via the
// sync worker.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS leads (
			id BIGSERIAL PRIMARY KEY,
			tag TEXT NOT NULL,
			username TEXT NOT NULL,
			full_name TEXT DEFAULT '',
			bio TEXT DEFAULT '',
			email TEXT DEFAULT '',
			phone TEXT DEFAULT '',
			website TEXT DEFAULT '',
			followers_count INTEGER DEFAULT 0,
			following_count INTEGER DEFAULT 0,
			posts_count INTEGER DEFAULT 0,
			is_verified BOOLEAN DEFAULT FALSE,
			is_business BOOLEAN DEFAULT FALSE,
			profile_pic_url TEXT DEFAULT '',
			avatar_key TEXT DEFAULT '',
			avatar_url TEXT DEFAULT '',
			is_duplicate BOOLEAN DEFAULT FALSE,
			location TEXT DEFAULT '',
			source_url TEXT DEFAULT '',
			source_excerpt TEXT DEFAULT '',
			source_timestamp TIMESTAMPTZ,
			subject TEXT DEFAULT '',
			email_body TEXT DEFAULT '',
			sent BOOLEAN DEFAULT FALSE,
			sent_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(tag, username)
		)`)
	return err
}

// UpsertLead mirrors one lead row. Empty incoming fields never clobber
// non-empty mirrored values, matching the SQLite monotonic-fill rule.
func (s *PostgresStore) UpsertLead(ctx context.Context, l *models.Lead) error {
	query := `
		INSERT INTO leads (
			tag, username, full_name, bio, email, phone, website,
			followers_count, following_count, posts_count, is_verified, is_business,
			profile_pic_url, avatar_key, avatar_url, is_duplicate, location,
			source_url, source_excerpt, source_timestamp,
			subject, email_body, sent, sent_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		ON CONFLICT (tag, username) DO UPDATE SET
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), leads.full_name),
			bio = COALESCE(NULLIF(EXCLUDED.bio, ''), leads.bio),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), leads.email),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), leads.phone),
			website = COALESCE(NULLIF(EXCLUDED.website, ''), leads.website),
			followers_count = COALESCE(NULLIF(EXCLUDED.followers_count, 0), leads.followers_count),
			following_count = COALESCE(NULLIF(EXCLUDED.following_count, 0), leads.following_count),
			posts_count = COALESCE(NULLIF(EXCLUDED.posts_count, 0), leads.posts_count),
			is_verified = EXCLUDED.is_verified OR leads.is_verified,
			is_business = EXCLUDED.is_business OR leads.is_business,
			profile_pic_url = COALESCE(NULLIF(EXCLUDED.profile_pic_url, ''), leads.profile_pic_url),
			avatar_key = COALESCE(NULLIF(EXCLUDED.avatar_key, ''), leads.avatar_key),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), leads.avatar_url),
			is_duplicate = EXCLUDED.is_duplicate OR leads.is_duplicate,
			location = COALESCE(NULLIF(EXCLUDED.location, ''), leads.location),
			source_url = COALESCE(NULLIF(EXCLUDED.source_url, ''), leads.source_url),
			source_excerpt = COALESCE(NULLIF(EXCLUDED.source_excerpt, ''), leads.source_excerpt),
			source_timestamp = COALESCE(EXCLUDED.source_timestamp, leads.source_timestamp),
			subject = COALESCE(NULLIF(EXCLUDED.subject, ''), leads.subject),
			email_body = COALESCE(NULLIF(EXCLUDED.email_body, ''), leads.email_body),
			sent = EXCLUDED.sent OR leads.sent,
			sent_at = COALESCE(EXCLUDED.sent_at, leads.sent_at),
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		l.Tag, l.Username, l.FullName, l.Bio, l.Email, l.Phone, l.Website,
		l.FollowersCount, l.FollowingCount, l.PostsCount, l.IsVerified, l.IsBusiness,
		l.ProfilePicURL, l.AvatarKey, l.AvatarURL, l.IsDuplicate, l.Location,
		l.SourceURL, l.SourceExcerpt, l.SourceTimestamp,
		l.Subject, l.EmailBody, l.Sent, l.SentAt, l.CreatedAt, l.UpdatedAt)
	return err
}
