package pipeline

import (
	"context"
	"log"
	"time"

	"ig_leadgen/models"
)

// Enricher produces one enrichment record per username, in input order.
type Enricher interface {
	EnrichBatch(ctx context.Context, tag string, usernames []string) []models.Lead
}

// PersistFunc durably stores a batch's leads and returns how many were
// saved. Failures on individual records are handled inside; the scheduler
// never buffers results pending a later batch.
type PersistFunc func(ctx context.Context, leads []models.Lead) int

// Sleeper abstracts pause waits so the scheduler can be tested without
// wall-clock sleeps.
type Sleeper func(d time.Duration)

// BatchScheduler drives sequential batches through enrichment with two-tier
// cool-down pauses. Batches never overlap: the pacing strategy depends on
// global request density, not per-batch density. The anti-abuse detector on
// the discovery target responds to burst density, so bursts are grouped and
// each group earns a longer recovery pause than the gaps inside it.
type BatchScheduler struct {
	enricher Enricher
	persist  PersistFunc
	progress *Tracker

	batchSize  int
	groupSize  int
	shortPause time.Duration
	longPause  time.Duration
	pauseSlice time.Duration

	sleep Sleeper
}

func NewBatchScheduler(enricher Enricher, persist PersistFunc, progress *Tracker, batchSize, groupSize int, shortPause, longPause, pauseSlice time.Duration) *BatchScheduler {
	if batchSize <= 0 {
		batchSize = 3
	}
	if groupSize <= 0 {
		groupSize = 3
	}
	return &BatchScheduler{
		enricher:   enricher,
		persist:    persist,
		progress:   progress,
		batchSize:  batchSize,
		groupSize:  groupSize,
		shortPause: shortPause,
		longPause:  longPause,
		pauseSlice: pauseSlice,
		sleep:      time.Sleep,
	}
}

// SetSleep replaces the pause function, used by tests.
func (s *BatchScheduler) SetSleep(fn Sleeper) {
	s.sleep = fn
}

// Partition splits usernames into fixed-size contiguous batches.
func Partition(usernames []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var batches [][]string
	for i := 0; i < len(usernames); i += size {
		end := i + size
		if end > len(usernames) {
			end = len(usernames)
		}
		batches = append(batches, usernames[i:end])
	}
	return batches
}

// Run drives the batches. It returns the number of leads saved and whether
// the run was cut short by a stop request. A stop is partial success, not a
// failure: everything persisted before it stays persisted.
func (s *BatchScheduler) Run(ctx context.Context, tag string, usernames []string) (int, bool) {
	batches := Partition(usernames, s.batchSize)
	saved := 0

	for i, batch := range batches {
		if s.progress.StopRequested() || ctx.Err() != nil {
			log.Printf("Scheduler: stop observed before batch %d/%d", i+1, len(batches))
			return saved, true
		}

		s.progress.SetPhase(models.PhaseEnriching)
		s.progress.SetBatch(i+1, len(batches))
		log.Printf("Scheduler: batch %d/%d (%d candidates)", i+1, len(batches), len(batch))

		leads := s.enricher.EnrichBatch(ctx, tag, batch)

		n := s.persist(ctx, leads)
		saved += n
		s.progress.AddLeads(n)
		s.progress.StepsDone(len(batch))

		if i < len(batches)-1 {
			s.progress.SetPhase(models.PhasePaused)
			if !s.pause(ctx, s.pauseAfter(i)) {
				log.Printf("Scheduler: stop observed during pause after batch %d", i+1)
				return saved, true
			}
		}
	}

	return saved, false
}

// pauseAfter picks the cool-down tier for the gap after batch i (0-based):
// a long pause at group boundaries, a short one inside a group.
func (s *BatchScheduler) pauseAfter(i int) time.Duration {
	if (i+1)%s.groupSize == 0 {
		return s.longPause
	}
	return s.shortPause
}

// pause sleeps in slices so a stop request takes effect within one slice
// rather than waiting out the full pause. Returns false if interrupted.
func (s *BatchScheduler) pause(ctx context.Context, d time.Duration) bool {
	slice := s.pauseSlice
	if slice <= 0 || slice > d {
		slice = d
	}

	for remaining := d; remaining > 0; remaining -= slice {
		if s.progress.StopRequested() || ctx.Err() != nil {
			return false
		}
		step := slice
		if remaining < slice {
			step = remaining
		}
		s.sleep(step)
	}

	return !s.progress.StopRequested() && ctx.Err() == nil
}
