package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ig_leadgen/config"
	"ig_leadgen/models"
	"ig_leadgen/pipeline"
	"ig_leadgen/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Daemon runs scheduled discovery passes and services the command queue.
// One pipeline run at a time; commands arriving mid-run are applied to it.
type Daemon struct {
	cfg    *config.Config
	store  *storage.SQLiteStore
	runner *pipeline.Runner
	cron   *cron.Cron
	stopCh chan struct{}

	mu      sync.Mutex
	tracker *pipeline.Tracker
	running bool
	paused  bool

	syncWorker   Triggerable
	avatarWorker Triggerable
}

func New(cfg *config.Config, store *storage.SQLiteStore, runner *pipeline.Runner) *Daemon {
	return &Daemon{
		cfg:    cfg,
		store:  store,
		runner: runner,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (d *Daemon) SetWorkers(syncWorker, avatarWorker Triggerable) {
	d.syncWorker = syncWorker
	d.avatarWorker = avatarWorker
}

func (d *Daemon) Start(ctx context.Context) error {
	go d.pollCommands(ctx)

	if d.cfg.Scheduler.Cron != "" {
		if len(d.cfg.Scheduler.Tags) == 0 {
			log.Println("Cron configured but no discovery tags set, scheduled runs disabled")
		} else {
			log.Printf("Starting scheduler with cron: %s (tags: %v)", d.cfg.Scheduler.Cron, d.cfg.Scheduler.Tags)
			_, err := d.cron.AddFunc(d.cfg.Scheduler.Cron, func() {
				d.runScheduled(ctx)
			})
			if err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}
			d.cron.Start()
		}
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (d *Daemon) Stop() {
	if d.cron != nil {
		d.cron.Stop()
	}
	close(d.stopCh)

	d.mu.Lock()
	if d.tracker != nil {
		d.tracker.RequestStop()
	}
	d.mu.Unlock()
}

// Progress reports the current run's state. ok is false when idle.
func (d *Daemon) Progress() (models.ProgressSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tracker == nil {
		return models.ProgressSnapshot{}, false
	}
	return d.tracker.Snapshot(), true
}

func (d *Daemon) runScheduled(ctx context.Context) {
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if paused {
		log.Println("Scheduled run skipped: daemon is paused")
		return
	}

	for _, tag := range d.cfg.Scheduler.Tags {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}
		d.runTag(ctx, tag)
	}
}

// runTag executes one pipeline run, blocking until it finishes.
// A run already in flight makes this a no-op.
func (d *Daemon) runTag(ctx context.Context, tag string) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		log.Printf("Run for %q skipped: another run is in progress", tag)
		return
	}
	tracker := pipeline.NewTracker()
	d.tracker = tracker
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	run := d.runner.Run(ctx, tag, tracker)
	log.Printf("Run %d for %q finished: %s (%d leads)", run.ID, tag, run.Status, run.LeadsFound)

	if d.syncWorker != nil {
		d.syncWorker.Trigger()
	}
	if d.avatarWorker != nil {
		d.avatarWorker.Trigger()
	}
}

func (d *Daemon) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := d.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := d.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := d.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Daemon) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdRunTag:
		params, err := d.store.ParseCommandParams(cmd)
		if err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
		if params.Tag == "" {
			return fmt.Errorf("run_tag command missing tag")
		}
		go d.runTag(ctx, params.Tag)
		return nil
	case models.CmdStop:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.tracker == nil || !d.running {
			log.Println("Stop command ignored: no run in progress")
			return nil
		}
		d.tracker.RequestStop()
		log.Println("Stop requested for current run")
		return nil
	case models.CmdPause:
		d.mu.Lock()
		d.paused = true
		d.mu.Unlock()
		log.Println("Daemon paused, scheduled runs suspended")
		return nil
	case models.CmdResume:
		d.mu.Lock()
		d.paused = false
		d.mu.Unlock()
		log.Println("Daemon resumed")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// TriggerNow runs every configured tag immediately.
func (d *Daemon) TriggerNow(ctx context.Context) {
	d.runScheduled(ctx)
}
