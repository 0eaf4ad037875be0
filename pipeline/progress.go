package pipeline

import (
	"sync"
	"time"

	"ig_leadgen/models"
)

// Tracker is the run state of exactly one pipeline invocation. It is created
// by the entry point, passed into the pipeline, and read by callers through
// Snapshot. The stop flag is cooperative: it is polled at batch boundaries
// and pause ticks, never preemptively.
type Tracker struct {
	mu sync.Mutex

	phase      models.Phase
	stepsDone  int
	stepsTotal int
	batch      int
	batchCount int
	leadsSaved int

	stepStart time.Time
	stop      bool

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{phase: models.PhaseIdle, now: time.Now}
}

// SetPhase moves to the given phase. Terminal phases are final: once the run
// has completed, stopped or failed, further transitions are ignored.
func (t *Tracker) SetPhase(p models.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Terminal() {
		return
	}
	t.phase = p
}

func (t *Tracker) Phase() models.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// StartSteps sets the step budget for the enrichment phase and starts the
// clock used for the remaining-time estimate.
func (t *Tracker) StartSteps(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stepsTotal = total
	t.stepsDone = 0
	t.stepStart = t.now()
}

func (t *Tracker) StepsDone(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stepsDone += n
	if t.stepsDone > t.stepsTotal {
		t.stepsDone = t.stepsTotal
	}
}

func (t *Tracker) SetBatch(batch, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batch = batch
	t.batchCount = count
}

func (t *Tracker) AddLeads(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leadsSaved += n
}

func (t *Tracker) LeadsSaved() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leadsSaved
}

// RequestStop raises the cancellation flag. The run will wind down at the
// next batch boundary or pause tick; whatever is already persisted stays.
func (t *Tracker) RequestStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stop = true
}

func (t *Tracker) StopRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}

// Snapshot returns a consistent read-only view for pollers.
func (t *Tracker) Snapshot() models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return models.ProgressSnapshot{
		Phase:         t.phase,
		StepsDone:     t.stepsDone,
		StepsTotal:    t.stepsTotal,
		Batch:         t.batch,
		BatchCount:    t.batchCount,
		LeadsSaved:    t.leadsSaved,
		ETASeconds:    t.etaLocked(),
		StopRequested: t.stop,
	}
}

// etaLocked estimates remaining seconds from the mean per-step duration so
// far. Zero until at least one step has finished.
func (t *Tracker) etaLocked() float64 {
	if t.stepsDone == 0 || t.stepsTotal == 0 || t.stepStart.IsZero() {
		return 0
	}
	remaining := t.stepsTotal - t.stepsDone
	if remaining <= 0 {
		return 0
	}
	elapsed := t.now().Sub(t.stepStart).Seconds()
	return elapsed / float64(t.stepsDone) * float64(remaining)
}
