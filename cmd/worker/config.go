package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/frietkaart/media-ingest/internal/setup"
)

type config struct {
	NATSURL         string
	JobSubject      string
	WorkerQueue     string
	ProgressSubject string
	DoneSubject     string
	JobTimeout      time.Duration

	Stores setup.Config
}

func loadConfig() (config, error) {
	cfg := config{
		NATSURL:         setup.Getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:      setup.Getenv("INGEST_JOB_SUBJECT", "media.ingest.jobs"),
		WorkerQueue:     setup.Getenv("INGEST_WORKER_QUEUE", "media-ingest-workers"),
		ProgressSubject: setup.Getenv("INGEST_PROGRESS_SUBJECT", "media.ingest.progress"),
		DoneSubject:     setup.Getenv("INGEST_DONE_SUBJECT", "media.ingest.done"),
	}

	seconds, err := parsePositiveInt(setup.Getenv("INGEST_JOB_TIMEOUT_SECONDS", "120"), "INGEST_JOB_TIMEOUT_SECONDS")
	if err != nil {
		return config{}, err
	}
	cfg.JobTimeout = time.Duration(seconds) * time.Second

	stores, err := setup.Load()
	if err != nil {
		return config{}, err
	}
	cfg.Stores = stores

	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}
