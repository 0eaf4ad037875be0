package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"ig_leadgen/config"
	"ig_leadgen/models"
	"ig_leadgen/storage"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{Pipeline: config.PipelineConfig{BatchSize: 3, GroupSize: 3}}
	return New(cfg, store, nil)
}

func TestDaemonPauseResume(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	if err := d.handleCommand(ctx, &models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if !paused {
		t.Fatal("pause command should set the paused flag")
	}

	if err := d.handleCommand(ctx, &models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	d.mu.Lock()
	paused = d.paused
	d.mu.Unlock()
	if paused {
		t.Fatal("resume command should clear the paused flag")
	}
}

func TestDaemonStopWithoutRun(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.handleCommand(context.Background(), &models.Command{Command: models.CmdStop}); err != nil {
		t.Fatalf("stop with no run should be a no-op, got %v", err)
	}
}

func TestDaemonUnknownCommand(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.handleCommand(context.Background(), &models.Command{Command: "format_disk"}); err == nil {
		t.Fatal("unknown command should error")
	}
}

func TestDaemonRunTagRequiresTag(t *testing.T) {
	d := newTestDaemon(t)
	cmd := &models.Command{Command: models.CmdRunTag, Params: []byte(`{}`)}
	if err := d.handleCommand(context.Background(), cmd); err == nil {
		t.Fatal("run_tag without a tag should error")
	}
}

func TestDaemonProgressIdle(t *testing.T) {
	d := newTestDaemon(t)
	if _, ok := d.Progress(); ok {
		t.Fatal("idle daemon should report no progress")
	}
}
