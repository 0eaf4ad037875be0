package workers

import (
	"context"
	"log"
	"time"

	"ig_leadgen/storage"
)

// SyncWorker pushes leads the pipeline has written locally up to the shared
// Postgres mirror. Runs on an interval and can be triggered manually.
type SyncWorker struct {
	local   *storage.SQLiteStore
	remote  *storage.PostgresStore
	trigger chan struct{}
}

func NewSyncWorker(local *storage.SQLiteStore, remote *storage.PostgresStore) *SyncWorker {
	return &SyncWorker{
		local:   local,
		remote:  remote,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate sync pass.
func (w *SyncWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run starts the sync loop.
func (w *SyncWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *SyncWorker) processBatch(ctx context.Context, batchSize int) {
	leads, err := w.local.GetUnsyncedLeads(batchSize)
	if err != nil {
		log.Printf("Sync: query error: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}

	log.Printf("Sync: mirroring %d leads", len(leads))

	var synced, failed int
	for i := range leads {
		l := &leads[i]

		if err := w.remote.UpsertLead(ctx, l); err != nil {
			log.Printf("Sync: failed %s/%s: %v", l.Tag, l.Username, err)
			failed++
			continue
		}

		if err := w.local.MarkLeadSynced(l.ID); err != nil {
			log.Printf("Sync: failed to mark %d synced: %v", l.ID, err)
			failed++
			continue
		}
		synced++
	}

	if synced > 0 || failed > 0 {
		log.Printf("Sync: %d mirrored, %d failed", synced, failed)
	}
}
