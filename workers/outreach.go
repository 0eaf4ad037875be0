package workers

import (
	"context"
	"log"
	"time"

	"ig_leadgen/outreach"
	"ig_leadgen/storage"
)

// OutreachWorker drafts messages for leads that have an email address but no
// draft yet. Dispatch is optional; without a dispatcher, drafts wait for
// manual review.
type OutreachWorker struct {
	store      *storage.SQLiteStore
	drafter    outreach.Drafter
	dispatcher outreach.Dispatcher
	trigger    chan struct{}
}

func NewOutreachWorker(store *storage.SQLiteStore, drafter outreach.Drafter, dispatcher outreach.Dispatcher) *OutreachWorker {
	return &OutreachWorker{
		store:      store,
		drafter:    drafter,
		dispatcher: dispatcher,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate drafting pass.
func (w *OutreachWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run starts the drafting loop.
func (w *OutreachWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Outreach worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *OutreachWorker) processBatch(ctx context.Context, batchSize int) {
	leads, err := w.store.GetLeadsNeedingOutreach(batchSize)
	if err != nil {
		log.Printf("Outreach: query error: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}

	log.Printf("Outreach: drafting %d messages", len(leads))

	for i := range leads {
		l := &leads[i]

		draft, err := w.drafter.Draft(l)
		if err != nil {
			log.Printf("Outreach: draft failed for %s: %v", l.Username, err)
			continue
		}

		if err := w.store.UpdateLeadOutreach(l.ID, draft.Subject, draft.Body); err != nil {
			log.Printf("Outreach: save failed for %s: %v", l.Username, err)
			continue
		}

		if w.dispatcher == nil {
			continue
		}

		if err := w.dispatcher.Dispatch(ctx, l, draft); err != nil {
			log.Printf("Outreach: dispatch failed for %s: %v", l.Username, err)
			continue
		}
		if err := w.store.MarkLeadSent(l.ID, time.Now().UTC()); err != nil {
			log.Printf("Outreach: failed to mark %s sent: %v", l.Username, err)
		}
	}
}
