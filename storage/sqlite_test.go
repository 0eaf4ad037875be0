package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"ig_leadgen/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertLeadInsertAndBackup(t *testing.T) {
	store := newTestStore(t)

	lead := models.Lead{Tag: "fitness", Username: "alice", Email: "alice@example.com"}
	ok, err := store.UpsertLead(&lead)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !ok {
		t.Fatal("insert should report saved")
	}
	if lead.ID == 0 {
		t.Fatal("id should be assigned on insert")
	}

	n, err := store.CountBackups(lead.ID)
	if err != nil {
		t.Fatalf("count backups: %v", err)
	}
	if n != 1 {
		t.Fatalf("insert should write one backup, got %d", n)
	}
}

func TestUpsertLeadIdempotent(t *testing.T) {
	store := newTestStore(t)

	record := func() models.Lead {
		return models.Lead{Tag: "fitness", Username: "alice", Email: "alice@example.com", FollowersCount: 100}
	}

	first := record()
	if _, err := store.UpsertLead(&first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := record()
	if _, err := store.UpsertLead(&second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	leads, err := store.LeadsByTag("fitness")
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("identical input twice should yield one row, got %d", len(leads))
	}
	if leads[0].Email != "alice@example.com" || leads[0].FollowersCount != 100 {
		t.Fatalf("fields changed on the second call: %+v", leads[0])
	}

	backups, err := store.BackupsByLead(leads[0].ID)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("one backup per call, expected 2, got %d", len(backups))
	}
	for _, b := range backups {
		if b.Tag != "fitness" || b.Username != "alice" || b.LeadID != leads[0].ID {
			t.Fatalf("backup row mismatch: %+v", b)
		}
		var snap models.Lead
		if err := json.Unmarshal(b.Snapshot, &snap); err != nil {
			t.Fatalf("snapshot should be a lead document: %v", err)
		}
		if snap.Email != "alice@example.com" {
			t.Fatalf("snapshot content lost: %+v", snap)
		}
	}
	if backups[0].ID == backups[1].ID {
		t.Fatal("each snapshot gets its own id")
	}
}

func TestUpsertLeadMonotonicFill(t *testing.T) {
	store := newTestStore(t)

	first := models.Lead{Tag: "fitness", Username: "alice", Email: "alice@example.com", FollowersCount: 100}
	if _, err := store.UpsertLead(&first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := models.Lead{Tag: "fitness", Username: "alice", FullName: "Alice Smith", FollowersCount: 150}
	ok, err := store.UpsertLead(&second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !ok {
		t.Fatal("update should report saved")
	}

	got, err := store.GetLead("fitness", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("empty email must not clobber existing, got %q", got.Email)
	}
	if got.FullName != "Alice Smith" {
		t.Fatalf("gap should be filled, got %q", got.FullName)
	}
	if got.FollowersCount != 150 {
		t.Fatalf("newer count should win, got %d", got.FollowersCount)
	}

	leads, err := store.LeadsByTag("fitness")
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("re-enrichment must not create a second row, got %d", len(leads))
	}

	n, _ := store.CountBackups(got.ID)
	if n != 2 {
		t.Fatalf("insert + pre-update snapshot, expected 2 backups, got %d", n)
	}
}

func TestUpsertLeadRecoversCandidateSource(t *testing.T) {
	store := newTestStore(t)

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cand := models.Candidate{
		Tag: "fitness", Username: "alice",
		SourceURL: "https://x/p/1", SourceExcerpt: "leg day", SourceTimestamp: &ts,
	}
	if err := store.UpsertCandidate(&cand); err != nil {
		t.Fatalf("candidate: %v", err)
	}

	lead := models.Lead{Tag: "fitness", Username: "alice"}
	if _, err := store.UpsertLead(&lead); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if lead.SourceURL != "https://x/p/1" || lead.SourceExcerpt != "leg day" {
		t.Fatalf("source metadata not recovered: %+v", lead)
	}
	if lead.SourceTimestamp == nil {
		t.Fatal("source timestamp not recovered")
	}
}

func TestFindCandidateSourceFallbackChain(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertCandidate(&models.Candidate{
		Tag: "fitnessmotivation", Username: "alice", SourceURL: "https://x/variant",
	}); err != nil {
		t.Fatalf("candidate: %v", err)
	}

	// Exact tag misses, substring match finds the variant row
	c, err := store.FindCandidateSource("alice", "fitness")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c == nil || c.SourceURL != "https://x/variant" {
		t.Fatalf("substring fallback failed: %+v", c)
	}

	// No tag relation at all: any row for the username still matches
	c, err = store.FindCandidateSource("alice", "cooking")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c == nil || c.SourceURL != "https://x/variant" {
		t.Fatalf("any-row fallback failed: %+v", c)
	}

	// Unknown username yields nothing
	c, err = store.FindCandidateSource("nobody", "fitness")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c != nil {
		t.Fatalf("expected no match, got %+v", c)
	}
}

func TestUpsertCandidateRediscovery(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertCandidate(&models.Candidate{
		Tag: "fitness", Username: "alice", SourceURL: "https://x/old",
	}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := store.UpsertCandidate(&models.Candidate{
		Tag: "fitness", Username: "alice", IsDuplicate: true, SourceURL: "https://x/new",
	}); err != nil {
		t.Fatalf("second: %v", err)
	}

	cands, err := store.CandidatesByTag("fitness")
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("re-discovery must not create a second row, got %d", len(cands))
	}
	if !cands[0].IsDuplicate || cands[0].SourceURL != "https://x/new" {
		t.Fatalf("re-discovery should refresh the row: %+v", cands[0])
	}
}

func TestExistingLeadUsernames(t *testing.T) {
	store := newTestStore(t)

	for _, u := range []string{"alice", "bob"} {
		if _, err := store.UpsertLead(&models.Lead{Tag: "fitness", Username: u}); err != nil {
			t.Fatalf("upsert %s: %v", u, err)
		}
	}
	if _, err := store.UpsertLead(&models.Lead{Tag: "yoga", Username: "carol"}); err != nil {
		t.Fatalf("upsert carol: %v", err)
	}

	got, err := store.ExistingLeadUsernames("fitness")
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if len(got) != 2 || !got["alice"] || !got["bob"] {
		t.Fatalf("unexpected set: %v", got)
	}
}

func TestSyncQueue(t *testing.T) {
	store := newTestStore(t)

	lead := models.Lead{Tag: "fitness", Username: "alice"}
	if _, err := store.UpsertLead(&lead); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, err := store.GetUnsyncedLeads(10)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("fresh lead should be unsynced, got %d", len(pending))
	}

	if err := store.MarkLeadSynced(lead.ID); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = store.GetUnsyncedLeads(10)
	if len(pending) != 0 {
		t.Fatalf("synced lead still pending, got %d", len(pending))
	}

	// Any later update re-queues the row
	if _, err := store.UpsertLead(&models.Lead{Tag: "fitness", Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	pending, _ = store.GetUnsyncedLeads(10)
	if len(pending) != 1 {
		t.Fatalf("updated lead should be unsynced again, got %d", len(pending))
	}
}

func TestAvatarQueue(t *testing.T) {
	store := newTestStore(t)

	withPic := models.Lead{Tag: "fitness", Username: "alice", ProfilePicURL: "https://cdn/a.jpg"}
	if _, err := store.UpsertLead(&withPic); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.UpsertLead(&models.Lead{Tag: "fitness", Username: "bob"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, err := store.GetLeadsNeedingAvatar(10)
	if err != nil {
		t.Fatalf("needing avatar: %v", err)
	}
	if len(pending) != 1 || pending[0].Username != "alice" {
		t.Fatalf("only alice has a picture to archive, got %v", pending)
	}

	if err := store.SetLeadAvatar(withPic.ID, "avatars/ab/abc.jpg", "https://cdn.example.com/avatars/ab/abc.jpg"); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	pending, _ = store.GetLeadsNeedingAvatar(10)
	if len(pending) != 0 {
		t.Fatalf("archived lead still pending, got %d", len(pending))
	}

	got, err := store.GetLead("fitness", "alice")
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if got.AvatarKey != "avatars/ab/abc.jpg" {
		t.Fatalf("avatar key not recorded: %q", got.AvatarKey)
	}
	if got.AvatarURL != "https://cdn.example.com/avatars/ab/abc.jpg" {
		t.Fatalf("avatar url not recorded: %q", got.AvatarURL)
	}
	if got.Synced {
		t.Fatal("archived lead should be queued for mirroring")
	}
}

func TestOutreachQueue(t *testing.T) {
	store := newTestStore(t)

	lead := models.Lead{Tag: "fitness", Username: "alice", Email: "a@example.com"}
	if _, err := store.UpsertLead(&lead); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.UpsertLead(&models.Lead{Tag: "fitness", Username: "bob"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, err := store.GetLeadsNeedingOutreach(10)
	if err != nil {
		t.Fatalf("needing outreach: %v", err)
	}
	if len(pending) != 1 || pending[0].Username != "alice" {
		t.Fatalf("only alice has an email to draft for, got %v", pending)
	}

	if err := store.UpdateLeadOutreach(lead.ID, "Hello", "Hi Alice"); err != nil {
		t.Fatalf("update outreach: %v", err)
	}
	pending, _ = store.GetLeadsNeedingOutreach(10)
	if len(pending) != 0 {
		t.Fatalf("drafted lead still pending, got %d", len(pending))
	}

	if err := store.MarkLeadSent(lead.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, _ := store.GetLead("fitness", "alice")
	if !got.Sent || got.SentAt == nil {
		t.Fatalf("sent flag not recorded: %+v", got)
	}
}

func TestPipelineRunLifecycle(t *testing.T) {
	store := newTestStore(t)

	run := &models.PipelineRun{
		Tag: "fitness", SearchLimit: 100,
		Status: models.PhaseDiscovering, SessionHash: "abc123", StartedAt: time.Now().UTC(),
	}
	id, err := store.CreatePipelineRun(run)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	run.ID = id

	now := time.Now().UTC()
	run.Status = models.PhaseCompleted
	run.LeadsFound = 7
	run.CompletedAt = &now
	if err := store.UpdatePipelineRun(run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetPipelineRun(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.PhaseCompleted || got.LeadsFound != 7 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at lost")
	}
	if got.SessionHash != "abc123" {
		t.Fatalf("session hash lost: %q", got.SessionHash)
	}

	if err := store.Log(&id, models.LogLevelInfo, "Run finished", "fitness"); err != nil {
		t.Fatalf("log: %v", err)
	}
	logs, err := store.LogsForRun(id)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(logs))
	}
	entry := logs[0]
	if entry.RunID == nil || *entry.RunID != id {
		t.Fatalf("log not attached to run: %+v", entry)
	}
	if entry.Level != models.LogLevelInfo || entry.Message != "Run finished" || entry.Tag != "fitness" {
		t.Fatalf("log row mismatch: %+v", entry)
	}
}

func TestCommandQueue(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddCommand(models.CmdRunTag, models.CommandParams{Tag: "fitness", Limit: 50}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddCommand(models.CmdStop, nil); err != nil {
		t.Fatalf("add stop: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(cmds))
	}

	var runCmd *models.Command
	for i := range cmds {
		if cmds[i].Command == models.CmdRunTag {
			runCmd = &cmds[i]
		}
	}
	if runCmd == nil {
		t.Fatalf("run_tag command missing from %v", cmds)
	}

	params, err := store.ParseCommandParams(runCmd)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Tag != "fitness" || params.Limit != 50 {
		t.Fatalf("unexpected params: %+v", params)
	}

	if err := store.MarkCommandProcessed(runCmd.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	cmds, _ = store.GetPendingCommands()
	if len(cmds) != 1 || cmds[0].Command != models.CmdStop {
		t.Fatalf("expected only the stop command pending, got %v", cmds)
	}
}

func TestResetKeepsBackups(t *testing.T) {
	store := newTestStore(t)

	lead := models.Lead{Tag: "fitness", Username: "alice"}
	if _, err := store.UpsertLead(&lead); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertCandidate(&models.Candidate{Tag: "fitness", Username: "alice"}); err != nil {
		t.Fatalf("candidate: %v", err)
	}

	if err := store.ResetAllData(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if got, _ := store.GetLead("fitness", "alice"); got != nil {
		t.Fatalf("lead should be gone, got %+v", got)
	}
	if got, _ := store.GetCandidate("fitness", "alice"); got != nil {
		t.Fatalf("candidate should be gone, got %+v", got)
	}

	backups, err := store.BackupsByLead(lead.ID)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups must survive a reset, got %d", len(backups))
	}
	if backups[0].Username != "alice" {
		t.Fatalf("backup row mismatch: %+v", backups[0])
	}
}
