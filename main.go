package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ig_leadgen/apify"
	"ig_leadgen/config"
	"ig_leadgen/enrich"
	"ig_leadgen/httputil"
	"ig_leadgen/logging"
	"ig_leadgen/models"
	"ig_leadgen/outreach"
	"ig_leadgen/pipeline"
	"ig_leadgen/scheduler"
	"ig_leadgen/storage"
	"ig_leadgen/workers"
)

var (
	runTag    = flag.String("run", "", "Run the pipeline once for this hashtag and exit")
	resetData = flag.Bool("reset", false, "Wipe candidates, leads, runs and logs, then exit (backups survive)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("daemon.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting ig_leadgen...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	clients := httputil.NewClients(cfg.ProxyURL)
	if cfg.ProxyURL != "" {
		log.Printf("Proxy: %s", cfg.ProxyURL)
	}

	ctx := context.Background()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer store.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	if *resetData {
		if err := store.ResetAllData(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("All pipeline data cleared")
		return
	}

	// Postgres mirror is optional; without it leads stay local.
	var pgStore *storage.PostgresStore
	if cfg.Postgres.URL != "" {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Postgres.URL))
	}

	apifyClient := apify.NewClient(clients.API, cfg.Apify.Token)
	streamer := apify.NewHashtagStreamer(apifyClient, cfg.Apify.HashtagActor, cfg.Pipeline.GCEvery, cfg.Pipeline.DiscoverySleep())
	profiles := apify.NewProfileFetcher(apifyClient, cfg.Apify.ProfileActor, cfg.IGSession)
	resolver := enrich.NewPerplexityResolver(clients.API, cfg.Perplexity.APIKey, cfg.Perplexity.Model)
	prober := enrich.NewWebsiteProber(clients.Web)

	enricher := enrich.NewOrchestrator(
		profiles, resolver, prober,
		cfg.Pipeline.MaxInFlight,
		cfg.Pipeline.JitterMin(), cfg.Pipeline.JitterMax(),
	)

	runner := pipeline.NewRunner(cfg.Pipeline, store, streamer, enricher, sessionHash(cfg.IGSession))
	runner.Preflight = cfg.Validate

	// Handle one-shot run
	if *runTag != "" {
		tracker := pipeline.NewTracker()
		go reportProgress(ctx, tracker)

		run := runner.Run(ctx, *runTag, tracker)
		if run.Status == models.PhaseFailed {
			log.Fatalf("Run failed: %s", run.ErrorMessage)
		}
		log.Printf("Run finished: %s, %d leads saved", run.Status, run.LeadsFound)
		return
	}

	// Daemon mode
	daemon := scheduler.New(cfg, store, runner)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var syncTrig, avatarTrig scheduler.Triggerable

	if pgStore != nil {
		syncWorker := workers.NewSyncWorker(store, pgStore)
		go syncWorker.Run(ctx, 50, 2*time.Minute)
		syncTrig = syncWorker
		log.Println("Sync worker started")
	}

	var uploader workers.Uploader = workers.NewNoOpUploader()
	if cfg.S3.Bucket != "" {
		s3up, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 unavailable, avatars will not be archived: %v", err)
		} else {
			uploader = s3up
			log.Printf("S3 bucket: %s", cfg.S3.Bucket)
		}
	}
	avatarWorker := workers.NewAvatarWorker(store, uploader, clients.Web)
	go avatarWorker.Run(ctx, 20, 5*time.Minute)
	avatarTrig = avatarWorker
	log.Println("Avatar worker started")

	drafter, err := outreach.NewTemplateDrafter(os.Getenv("OUTREACH_SUBJECT"), os.Getenv("OUTREACH_BODY"))
	if err != nil {
		log.Fatalf("Invalid outreach template: %v", err)
	}
	outreachWorker := workers.NewOutreachWorker(store, drafter, nil)
	go outreachWorker.Run(ctx, 25, 10*time.Minute)
	log.Println("Outreach worker started")

	daemon.SetWorkers(syncTrig, avatarTrig)

	if err := daemon.Start(ctx); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	daemon.Stop()
	log.Println("Goodbye!")
}

// sessionHash fingerprints the session credential for run records without
// persisting the credential itself.
func sessionHash(session string) string {
	if session == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(session))
	return hex.EncodeToString(sum[:])[:16]
}

// reportProgress prints run progress every few seconds until the run hits a
// terminal phase.
func reportProgress(ctx context.Context, tracker *pipeline.Tracker) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := tracker.Snapshot()
			if snap.Phase.Terminal() {
				return
			}
			if snap.StepsTotal > 0 {
				log.Printf("Progress: %s, %d/%d profiles, batch %d/%d, %d leads, ETA %.0fs",
					snap.Phase, snap.StepsDone, snap.StepsTotal, snap.Batch, snap.BatchCount, snap.LeadsSaved, snap.ETASeconds)
			} else {
				log.Printf("Progress: %s", snap.Phase)
			}
		}
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
