package pipeline

import (
	"context"
	"log"
	"time"

	"ig_leadgen/config"
	"ig_leadgen/models"
)

// DiscoverySource streams candidates for a tag. Failures degrade to an
// empty result inside the source.
type DiscoverySource interface {
	Discover(ctx context.Context, tag string, searchLimit, unitCap int) []models.Candidate
}

// Store is the durable state the runner needs: candidate rows, lead upserts
// and run bookkeeping.
type Store interface {
	CreatePipelineRun(run *models.PipelineRun) (int64, error)
	UpdatePipelineRun(run *models.PipelineRun) error
	UpsertCandidate(c *models.Candidate) error
	ExistingLeadUsernames(tag string) (map[string]bool, error)
	UpsertLead(l *models.Lead) (bool, error)
	Log(runID *int64, level models.LogLevel, message, tag string) error
}

// Runner executes one full discovery+enrichment pass for a tag. One run at
// a time process-wide; the Tracker passed in is owned by that run alone.
type Runner struct {
	cfg       config.PipelineConfig
	store     Store
	discovery DiscoverySource
	enricher  Enricher

	// Preflight is checked before any work starts; an error here is the
	// only thing that fails a run outright.
	Preflight func() error

	sessionHash string
	sleep       Sleeper
}

func NewRunner(cfg config.PipelineConfig, store Store, discovery DiscoverySource, enricher Enricher, sessionHash string) *Runner {
	return &Runner{
		cfg:         cfg,
		store:       store,
		discovery:   discovery,
		enricher:    enricher,
		sessionHash: sessionHash,
		sleep:       time.Sleep,
	}
}

// SetSleep replaces the pause function used by the batch scheduler, for
// tests.
func (r *Runner) SetSleep(fn Sleeper) {
	r.sleep = fn
}

// Run executes the pipeline and returns the run record. Nothing inside a
// batch propagates as an error: the result carries whatever was durably
// saved plus the terminal phase (completed, stopped or failed).
func (r *Runner) Run(ctx context.Context, tag string, tracker *Tracker) *models.PipelineRun {
	run := &models.PipelineRun{
		Tag:         tag,
		SearchLimit: r.cfg.SearchLimit,
		Status:      models.PhaseDiscovering,
		SessionHash: r.sessionHash,
		StartedAt:   time.Now(),
	}

	if id, err := r.store.CreatePipelineRun(run); err != nil {
		log.Printf("Runner: could not record run for #%s: %v", tag, err)
	} else {
		run.ID = id
	}

	if r.Preflight != nil {
		if err := r.Preflight(); err != nil {
			log.Printf("Runner: preflight failed for #%s: %v", tag, err)
			run.ErrorMessage = err.Error()
			r.finalize(run, tracker, models.PhaseFailed)
			return run
		}
	}

	tracker.SetPhase(models.PhaseDiscovering)
	r.log(run, models.LogLevelInfo, "Starting discovery for #"+tag)

	candidates := r.discovery.Discover(ctx, tag, r.cfg.SearchLimit, r.cfg.DiscoveryCap)
	unique, duplicates := Dedupe(candidates)

	for i := range unique {
		c := unique[i]
		if c.Tag == "" || c.Username == "" {
			continue
		}
		c.IsDuplicate = duplicates[c.Username]
		if err := r.store.UpsertCandidate(&c); err != nil {
			log.Printf("Runner: candidate upsert failed for %s: %v", c.Username, err)
		}
	}

	tracker.SetPhase(models.PhaseSearchComplete)
	r.log(run, models.LogLevelInfo, "Discovery complete")

	if tracker.StopRequested() {
		r.finalize(run, tracker, models.PhaseStopped)
		return run
	}

	existing, err := r.store.ExistingLeadUsernames(tag)
	if err != nil {
		log.Printf("Runner: existing-lead lookup failed for #%s: %v", tag, err)
		existing = map[string]bool{}
	}

	var usernames []string
	for _, c := range unique {
		if c.Tag == "" || c.Username == "" || existing[c.Username] {
			continue
		}
		usernames = append(usernames, c.Username)
	}

	tracker.StartSteps(len(usernames))

	if len(usernames) == 0 {
		r.log(run, models.LogLevelInfo, "No new candidates to enrich")
		r.finalize(run, tracker, models.PhaseCompleted)
		return run
	}

	sched := NewBatchScheduler(
		r.enricher,
		r.persistFunc(run, duplicates),
		tracker,
		r.cfg.BatchSize,
		r.cfg.GroupSize,
		r.cfg.ShortPause(),
		r.cfg.LongPause(),
		r.cfg.PauseSlice(),
	)
	sched.SetSleep(r.sleep)

	saved, stopped := sched.Run(ctx, tag, usernames)
	run.LeadsFound = saved

	if stopped {
		r.finalize(run, tracker, models.PhaseStopped)
	} else {
		r.finalize(run, tracker, models.PhaseCompleted)
	}
	return run
}

// persistFunc commits a batch's leads one row at a time, immediately. A
// failed record is logged and skipped so one bad row cannot sink the batch.
func (r *Runner) persistFunc(run *models.PipelineRun, duplicates map[string]bool) PersistFunc {
	return func(ctx context.Context, leads []models.Lead) int {
		saved := 0
		for i := range leads {
			lead := leads[i]
			if lead.Username == "" {
				continue
			}
			lead.IsDuplicate = duplicates[lead.Username]

			ok, err := r.store.UpsertLead(&lead)
			if err != nil {
				log.Printf("Runner: lead upsert failed for %s: %v", lead.Username, err)
				r.log(run, models.LogLevelError, "Lead save failed for "+lead.Username+": "+err.Error())
				continue
			}
			if ok {
				saved++
			}
		}
		return saved
	}
}

func (r *Runner) finalize(run *models.PipelineRun, tracker *Tracker, phase models.Phase) {
	tracker.SetPhase(phase)
	run.Status = phase
	run.LeadsFound = tracker.LeadsSaved()
	now := time.Now()
	run.CompletedAt = &now

	if err := r.store.UpdatePipelineRun(run); err != nil {
		log.Printf("Runner: could not finalize run %d: %v", run.ID, err)
	}
	r.log(run, models.LogLevelInfo, "Run finished: "+string(phase))
}

func (r *Runner) log(run *models.PipelineRun, level models.LogLevel, msg string) {
	log.Printf("[%s] %s: %s", level, run.Tag, msg)

	var runID *int64
	if run.ID != 0 {
		runID = &run.ID
	}
	if err := r.store.Log(runID, level, msg, run.Tag); err != nil {
		log.Printf("Runner: log write failed: %v", err)
	}
}
