package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/vendor-insights/internal/app"
	"github.com/dvloznov/vendor-insights/internal/config"
	"github.com/dvloznov/vendor-insights/internal/jobs"
	"github.com/dvloznov/vendor-insights/internal/jobs/inmemory"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
	"github.com/joho/godotenv"
)

// The worker runs scheduled metric runs on the in-memory queue. Each tick
// publishes a run for the latest month with data.
func main() {
	_ = godotenv.Load()

	var (
		every   = flag.Duration("every", 0, "Publish a run at this interval (0 runs once and exits)")
		source  = flag.String("source", "", "Data source: bigquery, postgres or csv (default from config)")
		history = flag.Bool("history", true, "Compute every month in the history range")
		enrich  = flag.Bool("enrich", true, "Run the benchmark enricher")
		export  = flag.Bool("export", true, "Export reports to Cloud Storage")
		narrate = flag.Bool("narrate", false, "Generate the run narrative")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configured, err := logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log configuration")
	}
	log = configured

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	svc, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.Workers, jobStore)

	if err := jobQueue.Start(ctx, pipeline.NewJobHandler(svc.Resolve)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	publish := func() string {
		job := &jobs.ComputeMetricsJob{
			Source:     *source,
			History:    *history,
			Enrich:     *enrich,
			Export:     *export,
			Narrate:    *narrate,
			MaxRetries: cfg.Worker.MaxRetries,
		}
		if err := jobQueue.PublishComputeMetrics(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to publish scheduled run")
			return ""
		}
		log.Info().Str("job_id", job.JobID).Msg("Published scheduled run")
		return job.JobID
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	if *every <= 0 {
		jobID := publish()
		if jobID == "" {
			exitCode = 1
		} else if status := waitForJob(ctx, jobStore, jobID, quit); status != jobs.JobStatusCompleted {
			exitCode = 1
		}
	} else {
		log.Info().Dur("every", *every).Msg("Worker service started")
		ticker := time.NewTicker(*every)
		publish()
	loop:
		for {
			select {
			case <-ticker.C:
				publish()
			case <-quit:
				break loop
			}
		}
		ticker.Stop()
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
	if exitCode != 0 {
		svc.Close()
		os.Exit(exitCode)
	}
}

// waitForJob polls the store until the job finishes or a signal arrives.
func waitForJob(ctx context.Context, store jobs.JobStore, jobID string, quit <-chan os.Signal) jobs.JobStatus {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return jobs.JobStatusPending
		case <-ticker.C:
		}

		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job")
			return jobs.JobStatusFailed
		}
		switch job.Status {
		case jobs.JobStatusCompleted:
			log.Info().Str("job_id", jobID).Strs("reports", job.Reports).Strs("run_ids", job.RunIDs).Msg("Run completed")
			return job.Status
		case jobs.JobStatusFailed:
			log.Error().Str("job_id", jobID).Str("error", job.Error).Strs("run_ids", job.RunIDs).Msg("Run failed")
			return job.Status
		}
	}
}
