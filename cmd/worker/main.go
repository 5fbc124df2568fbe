// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/frietkaart/media-ingest/internal/bus"
	"github.com/frietkaart/media-ingest/internal/ingest"
	"github.com/frietkaart/media-ingest/internal/meta"
	"github.com/frietkaart/media-ingest/internal/setup"
	"github.com/frietkaart/media-ingest/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("worker starting",
		"nats_url", cfg.NATSURL,
		"job_subject", cfg.JobSubject,
		"queue", cfg.WorkerQueue,
		"progress_subject", cfg.ProgressSubject,
		"done_subject", cfg.DoneSubject)

	ctx := context.Background()
	stores, err := setup.BuildStores(ctx, cfg.Stores)
	if err != nil {
		fatal(logger, "build stores", err)
	}
	defer stores.Close()
	logger.Info("stores ready",
		"bucket", cfg.Stores.Minio.Bucket,
		"project", cfg.Stores.FirestoreProjectID,
		"images_collection", cfg.Stores.ImagesCollection)

	services := setup.Services(stores, logger)

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)

	_, err = nc.QueueSubscribeJSON(cfg.JobSubject, cfg.WorkerQueue, cfg.JobTimeout, func(jobCtx context.Context, data []byte) {
		var job schema.IngestJob
		if err := json.Unmarshal(data, &job); err != nil {
			logger.Warn("discarding malformed job", "err", err)
			return
		}
		handleJob(jobCtx, job, cfg, services, nc, logger)
	})
	if err != nil {
		fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
	}
	logger.Info("listening for jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue)

	select {}
}

func handleJob(ctx context.Context, job schema.IngestJob, cfg config, services map[ingest.Scope]*ingest.Service, nc *bus.Client, logger *slog.Logger) {
	jobLogger := logger.With("job_id", job.ID)
	jobLogger.Info("received job", "path", job.Path, "scope", job.Scope, "owner", job.OwnerRef)
	start := time.Now()

	svc, ok := services[ingest.Scope(job.Scope)]
	if !ok {
		publishDone(nc, cfg.DoneSubject, job, nil, start, fmt.Errorf("unknown scope %q", job.Scope), jobLogger)
		return
	}

	data, err := os.ReadFile(job.Path)
	if err != nil {
		publishDone(nc, cfg.DoneSubject, job, nil, start, fmt.Errorf("read staged file: %w", err), jobLogger)
		return
	}

	tr := ingest.NewTracker()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range tr.Events() {
			publishProgress(nc, cfg.ProgressSubject, job.ID, ev, jobLogger)
		}
	}()

	rec, err := svc.Ingest(ctx, ingest.Upload{
		Filename: job.Filename,
		MimeType: job.MimeType,
		Data:     data,
	}, ingest.Metadata{
		OwnerRef:       job.OwnerRef,
		UploadedBy:     job.UploadedBy,
		Title:          job.Title,
		Description:    job.Description,
		Category:       job.Category,
		VisibilityTier: job.VisibilityTier,
		Tags:           job.Tags,
		Featured:       job.Featured,
		Primary:        job.Primary,
	}, tr)
	wg.Wait()

	if err != nil {
		jobLogger.Error("ingest failed", "err", err)
	} else {
		jobLogger.Info("ingest done", "record_id", rec.ID, "duration_ms", time.Since(start).Milliseconds())
		if err := os.Remove(job.Path); err != nil {
			jobLogger.Warn("remove staged file failed", "err", err)
		}
	}
	publishDone(nc, cfg.DoneSubject, job, rec, start, err, jobLogger)
}

func publishProgress(nc *bus.Client, subject, jobID string, ev ingest.Event, logger *slog.Logger) {
	msg := schema.IngestProgress{
		JobID:      jobID,
		Stage:      string(ev.Stage),
		Status:     string(ev.Status),
		Percent:    ev.Percent,
		Error:      ev.Error,
		HappenedAt: time.Now().Unix(),
	}
	if err := nc.PublishJSON(subject, msg); err != nil {
		logger.Warn("publish progress failed", "subject", subject, "err", err)
	}
}

func publishDone(nc *bus.Client, subject string, job schema.IngestJob, rec *meta.Record, start time.Time, cause error, logger *slog.Logger) {
	done := schema.IngestDone{
		JobID:            job.ID,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		HappenedAt:       time.Now().Unix(),
	}
	if rec != nil {
		done.RecordID = rec.ID
		done.OriginalURL = rec.OriginalURL
		done.DerivativeURL = rec.DerivativeURL
		done.StorageKey = rec.StorageKey
		done.ByteSize = rec.ByteSize
		done.Width = rec.Width
		done.Height = rec.Height
	}
	if cause != nil {
		done.Error = cause.Error()
	}
	if err := nc.PublishJSON(subject, done); err != nil {
		logger.Error("publish result failed", "subject", subject, "err", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
