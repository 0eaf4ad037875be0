package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"ig_leadgen/models"
)

// SQLiteStore is the primary durable store: candidates, leads, append-only
// lead backups, pipeline runs, run logs and the command queue. Every write
// is a single-row statement committed on its own.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY,
		tag TEXT NOT NULL,
		username TEXT NOT NULL,
		is_duplicate BOOLEAN DEFAULT FALSE,
		source_timestamp DATETIME,
		source_url TEXT,
		source_excerpt TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tag, username)
	);

	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY,
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
		source_timestamp DATETIME,
		subject TEXT DEFAULT '',
		email_body TEXT DEFAULT '',
		sent BOOLEAN DEFAULT FALSE,
		sent_at DATETIME,
		synced BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tag, username)
	);

	CREATE TABLE IF NOT EXISTS lead_backups (
		id TEXT PRIMARY KEY,
		lead_id INTEGER NOT NULL,
		tag TEXT NOT NULL,
		username TEXT NOT NULL,
		snapshot JSON NOT NULL,
		taken_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id INTEGER PRIMARY KEY,
		tag TEXT NOT NULL,
		search_limit INTEGER DEFAULT 0,
		status TEXT,
		leads_found INTEGER DEFAULT 0,
		session_hash TEXT DEFAULT '',
		error_message TEXT DEFAULT '',
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		tag TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_username ON candidates(username);
	CREATE INDEX IF NOT EXISTS idx_leads_tag ON leads(tag);
	CREATE INDEX IF NOT EXISTS idx_leads_synced ON leads(synced) WHERE synced = FALSE;
	CREATE INDEX IF NOT EXISTS idx_backups_lead ON lead_backups(lead_id, taken_at);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Candidates
// =============================================================================

// UpsertCandidate records a discovered (tag, username) pair. Re-discovery
// updates the duplicate flag and source fields instead of creating a row.
func (s *SQLiteStore) UpsertCandidate(c *models.Candidate) error {
	_, err := s.db.Exec(`
		INSERT INTO candidates (tag, username, is_duplicate, source_timestamp, source_url, source_excerpt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tag, username) DO UPDATE SET
			is_duplicate = excluded.is_duplicate,
			source_timestamp = COALESCE(excluded.source_timestamp, source_timestamp),
			source_url = CASE WHEN excluded.source_url != '' THEN excluded.source_url ELSE source_url END,
			source_excerpt = CASE WHEN excluded.source_excerpt != '' THEN excluded.source_excerpt ELSE source_excerpt END`,
		c.Tag, c.Username, c.IsDuplicate, c.SourceTimestamp, c.SourceURL, c.SourceExcerpt)
	return err
}

func (s *SQLiteStore) GetCandidate(tag, username string) (*models.Candidate, error) {
	row := s.db.QueryRow(`
		SELECT id, tag, username, is_duplicate, source_timestamp, source_url, source_excerpt, created_at
		FROM candidates WHERE tag = ? AND username = ?`, tag, username)
	return scanCandidate(row)
}

// FindCandidateSource recovers the originating candidate row for a lead.
// Tag variants drift between discovery and enrichment passes (encoding,
// casing), so the lookup falls back from exact tag match to substring match
// to any row for the username. Best effort: with several tags sharing a
// username the fallback can mis-attribute source metadata.
func (s *SQLiteStore) FindCandidateSource(username, tag string) (*models.Candidate, error) {
	if c, err := s.GetCandidate(tag, username); err != nil || c != nil {
		return c, err
	}

	row := s.db.QueryRow(`
		SELECT id, tag, username, is_duplicate, source_timestamp, source_url, source_excerpt, created_at
		FROM candidates WHERE username = ? AND tag LIKE '%' || ? || '%'
		ORDER BY created_at DESC LIMIT 1`, username, tag)
	if c, err := scanCandidate(row); err != nil || c != nil {
		return c, err
	}

	row = s.db.QueryRow(`
		SELECT id, tag, username, is_duplicate, source_timestamp, source_url, source_excerpt, created_at
		FROM candidates WHERE username = ?
		ORDER BY created_at DESC LIMIT 1`, username)
	return scanCandidate(row)
}

func (s *SQLiteStore) CandidatesByTag(tag string) ([]models.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT id, tag, username, is_duplicate, source_timestamp, source_url, source_excerpt, created_at
		FROM candidates WHERE tag = ? ORDER BY id`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		c, err := scanCandidateRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// =============================================================================
// Leads
// =============================================================================

// UpsertLead persists one enrichment record. Updates follow the
// monotonic-fill rule (a non-empty field is never overwritten by an empty
// one); a backup snapshot is written before every update and after every
// insert. Source metadata is recovered from the candidate row if the
// incoming record lacks it.
func (s *SQLiteStore) UpsertLead(l *models.Lead) (bool, error) {
	if l.SourceURL == "" && l.SourceExcerpt == "" && l.SourceTimestamp == nil {
		if c, err := s.FindCandidateSource(l.Username, l.Tag); err == nil && c != nil {
			l.SourceURL = c.SourceURL
			l.SourceExcerpt = c.SourceExcerpt
			l.SourceTimestamp = c.SourceTimestamp
		}
	}

	existing, err := s.GetLead(l.Tag, l.Username)
	if err != nil {
		return false, fmt.Errorf("lookup lead: %w", err)
	}

	if existing != nil {
		// Snapshot the pre-update state first
		if err := s.writeBackup(existing); err != nil {
			return false, fmt.Errorf("backup lead %d: %w", existing.ID, err)
		}

		existing.MergeFrom(l)
		if err := s.updateLead(existing); err != nil {
			return false, fmt.Errorf("update lead %d: %w", existing.ID, err)
		}
		*l = *existing
		return true, nil
	}

	if err := s.insertLead(l); err != nil {
		return false, fmt.Errorf("insert lead: %w", err)
	}
	if err := s.writeBackup(l); err != nil {
		return false, fmt.Errorf("backup lead %d: %w", l.ID, err)
	}
	return true, nil
}

func (s *SQLiteStore) insertLead(l *models.Lead) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	res, err := s.db.Exec(`
		INSERT INTO leads (tag, username, full_name, bio, email, phone, website,
			followers_count, following_count, posts_count, is_verified, is_business,
			profile_pic_url, avatar_key, avatar_url, is_duplicate, location,
			source_url, source_excerpt, source_timestamp,
			subject, email_body, sent, sent_at, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?)`,
		l.Tag, l.Username, l.FullName, l.Bio, l.Email, l.Phone, l.Website,
		l.FollowersCount, l.FollowingCount, l.PostsCount, l.IsVerified, l.IsBusiness,
		l.ProfilePicURL, l.AvatarKey, l.AvatarURL, l.IsDuplicate, l.Location,
		l.SourceURL, l.SourceExcerpt, l.SourceTimestamp,
		l.Subject, l.EmailBody, l.Sent, l.SentAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

func (s *SQLiteStore) updateLead(l *models.Lead) error {
	l.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		UPDATE leads SET
			full_name = ?, bio = ?, email = ?, phone = ?, website = ?,
			followers_count = ?, following_count = ?, posts_count = ?,
			is_verified = ?, is_business = ?, profile_pic_url = ?, avatar_key = ?,
			avatar_url = ?, is_duplicate = ?, location = ?, source_url = ?, source_excerpt = ?,
			source_timestamp = ?, subject = ?, email_body = ?, sent = ?, sent_at = ?,
			synced = FALSE, updated_at = ?
		WHERE id = ?`,
		l.FullName, l.Bio, l.Email, l.Phone, l.Website,
		l.FollowersCount, l.FollowingCount, l.PostsCount,
		l.IsVerified, l.IsBusiness, l.ProfilePicURL, l.AvatarKey, l.AvatarURL,
		l.IsDuplicate, l.Location, l.SourceURL, l.SourceExcerpt,
		l.SourceTimestamp, l.Subject, l.EmailBody, l.Sent, l.SentAt,
		l.UpdatedAt, l.ID)
	return err
}

// writeBackup appends a snapshot row. Backups are append-only and keyed by
// a synthetic uuid referencing the lead's primary key; deleting the lead
// leaves them untouched.
func (s *SQLiteStore) writeBackup(l *models.Lead) error {
	snapshot, err := json.Marshal(l)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO lead_backups (id, lead_id, tag, username, snapshot, taken_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), l.ID, l.Tag, l.Username, snapshot, time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetLead(tag, username string) (*models.Lead, error) {
	row := s.db.QueryRow(leadSelect+` WHERE tag = ? AND username = ?`, tag, username)
	return scanLead(row)
}

func (s *SQLiteStore) LeadsByTag(tag string) ([]models.Lead, error) {
	rows, err := s.db.Query(leadSelect+` WHERE tag = ? ORDER BY id`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ExistingLeadUsernames returns the usernames already enriched for a tag,
// used to filter candidates before scheduling.
func (s *SQLiteStore) ExistingLeadUsernames(tag string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT username FROM leads WHERE tag = ?`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = true
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountBackups(leadID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM lead_backups WHERE lead_id = ?`, leadID).Scan(&n)
	return n, err
}

// BackupsByLead returns every snapshot taken for a lead, oldest first.
func (s *SQLiteStore) BackupsByLead(leadID int64) ([]models.LeadBackup, error) {
	rows, err := s.db.Query(`
		SELECT id, lead_id, tag, username, snapshot, taken_at
		FROM lead_backups WHERE lead_id = ? ORDER BY taken_at, id`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LeadBackup
	for rows.Next() {
		var b models.LeadBackup
		if err := rows.Scan(&b.ID, &b.LeadID, &b.Tag, &b.Username, &b.Snapshot, &b.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetUnsyncedLeads returns leads not yet mirrored to Postgres.
func (s *SQLiteStore) GetUnsyncedLeads(limit int) ([]models.Lead, error) {
	rows, err := s.db.Query(leadSelect+` WHERE synced = FALSE ORDER BY updated_at LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) MarkLeadSynced(id int64) error {
	_, err := s.db.Exec(`UPDATE leads SET synced = TRUE WHERE id = ?`, id)
	return err
}

// GetLeadsNeedingAvatar returns leads with a profile picture URL but no
// archived copy yet.
func (s *SQLiteStore) GetLeadsNeedingAvatar(limit int) ([]models.Lead, error) {
	rows, err := s.db.Query(leadSelect+` WHERE profile_pic_url != '' AND avatar_key = '' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) SetLeadAvatar(id int64, key, url string) error {
	_, err := s.db.Exec(`UPDATE leads SET avatar_key = ?, avatar_url = ?, synced = FALSE, updated_at = ? WHERE id = ?`,
		key, url, time.Now().UTC(), id)
	return err
}

// GetLeadsNeedingOutreach returns leads with an email address but no draft.
func (s *SQLiteStore) GetLeadsNeedingOutreach(limit int) ([]models.Lead, error) {
	rows, err := s.db.Query(leadSelect+` WHERE email != '' AND subject = '' AND sent = FALSE ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// UpdateLeadOutreach stores a drafted subject/body on the lead.
func (s *SQLiteStore) UpdateLeadOutreach(id int64, subject, body string) error {
	_, err := s.db.Exec(`UPDATE leads SET subject = ?, email_body = ?, synced = FALSE, updated_at = ? WHERE id = ?`,
		subject, body, time.Now().UTC(), id)
	return err
}

// MarkLeadSent flags the lead as dispatched.
func (s *SQLiteStore) MarkLeadSent(id int64, sentAt time.Time) error {
	_, err := s.db.Exec(`UPDATE leads SET sent = TRUE, sent_at = ?, synced = FALSE, updated_at = ? WHERE id = ?`,
		sentAt, time.Now().UTC(), id)
	return err
}

// =============================================================================
// Pipeline runs / logs
// =============================================================================

func (s *SQLiteStore) CreatePipelineRun(run *models.PipelineRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO pipeline_runs (tag, search_limit, status, leads_found, session_hash, error_message, started_at)
		VALUES (?, ?, ?, 0, ?, '', ?)`,
		run.Tag, run.SearchLimit, run.Status, run.SessionHash, run.StartedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdatePipelineRun(run *models.PipelineRun) error {
	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET status = ?, leads_found = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		run.Status, run.LeadsFound, run.ErrorMessage, run.CompletedAt, run.ID)
	return err
}

func (s *SQLiteStore) GetPipelineRun(id int64) (*models.PipelineRun, error) {
	row := s.db.QueryRow(`
		SELECT id, tag, search_limit, status, leads_found, session_hash, error_message, started_at, completed_at
		FROM pipeline_runs WHERE id = ?`, id)

	var run models.PipelineRun
	err := row.Scan(&run.ID, &run.Tag, &run.SearchLimit, &run.Status, &run.LeadsFound,
		&run.SessionHash, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, tag string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, tag)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), level, message, tag)
	return err
}

// LogsForRun returns a run's log lines in write order.
func (s *SQLiteStore) LogsForRun(runID int64) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, tag
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunLog
	for rows.Next() {
		var rl models.RunLog
		if err := rows.Scan(&rl.ID, &rl.RunID, &rl.Timestamp, &rl.Level, &rl.Message, &rl.Tag); err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) AddCommand(cmd models.CommandType, params interface{}) error {
	var raw []byte
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmd, raw)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params string
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmd.Params = json.RawMessage(params)
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, err
	}
	return params, nil
}

// ResetAllData clears candidates, leads and runs. Backups are append-only
// and deliberately survive the reset.
func (s *SQLiteStore) ResetAllData() error {
	for _, table := range []string{"candidates", "leads", "pipeline_runs", "run_logs", "commands"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// Scan helpers
// =============================================================================

const leadSelect = `
	SELECT id, tag, username, full_name, bio, email, phone, website,
		followers_count, following_count, posts_count, is_verified, is_business,
		profile_pic_url, avatar_key, avatar_url, is_duplicate, location,
		source_url, source_excerpt, source_timestamp,
		subject, email_body, sent, sent_at, synced, created_at, updated_at
	FROM leads`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	err := row.Scan(&l.ID, &l.Tag, &l.Username, &l.FullName, &l.Bio, &l.Email, &l.Phone, &l.Website,
		&l.FollowersCount, &l.FollowingCount, &l.PostsCount, &l.IsVerified, &l.IsBusiness,
		&l.ProfilePicURL, &l.AvatarKey, &l.AvatarURL, &l.IsDuplicate, &l.Location,
		&l.SourceURL, &l.SourceExcerpt, &l.SourceTimestamp,
		&l.Subject, &l.EmailBody, &l.Sent, &l.SentAt, &l.Synced, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]models.Lead, error) {
	var out []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanCandidate(row *sql.Row) (*models.Candidate, error) {
	var c models.Candidate
	var url, excerpt sql.NullString
	err := row.Scan(&c.ID, &c.Tag, &c.Username, &c.IsDuplicate, &c.SourceTimestamp, &url, &excerpt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.SourceURL = url.String
	c.SourceExcerpt = excerpt.String
	return &c, nil
}

func scanCandidateRows(rows *sql.Rows) (*models.Candidate, error) {
	var c models.Candidate
	var url, excerpt sql.NullString
	err := rows.Scan(&c.ID, &c.Tag, &c.Username, &c.IsDuplicate, &c.SourceTimestamp, &url, &excerpt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.SourceURL = url.String
	c.SourceExcerpt = excerpt.String
	return &c, nil
}
