// cmd/reconcile scans the blob store for orphaned objects: blobs whose
// storage key is referenced by no image record. A metadata write can fail
// (or the worker can crash) after the blobs are already uploaded, so the
// pair lingers with no record pointing at it. This tool finds those pairs
// and, with -delete, removes them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"

	"github.com/frietkaart/media-ingest/internal/ingest"
	"github.com/frietkaart/media-ingest/internal/meta"
	"github.com/frietkaart/media-ingest/internal/setup"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	prefix := flag.String("prefix", "", "only scan blob keys under this prefix")
	doDelete := flag.Bool("delete", false, "delete orphaned blobs instead of only reporting them")
	flag.Parse()

	cfg, err := setup.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}

	ctx := context.Background()
	stores, err := setup.BuildStores(ctx, cfg)
	if err != nil {
		fatal(logger, "build stores", err)
	}
	defer stores.Close()

	logger.Info("reconcile starting", "bucket", cfg.Minio.Bucket, "prefix", *prefix, "delete", *doDelete)

	records, err := stores.Records.Query(ctx, meta.Filters{})
	if err != nil {
		fatal(logger, "query records", err)
	}
	referenced := referencedKeys(records)
	logger.Info("loaded records", "records", len(records), "referenced_keys", len(referenced))

	keys, err := stores.Blobs.List(ctx, *prefix)
	if err != nil {
		fatal(logger, "list blobs", err)
	}

	var orphans []string
	for _, key := range keys {
		if !referenced[key] {
			orphans = append(orphans, key)
		}
	}
	logger.Info("scan finished", "blobs", len(keys), "orphans", len(orphans))

	for _, key := range orphans {
		if !*doDelete {
			logger.Info("orphaned blob", "key", key)
			continue
		}
		if err := stores.Blobs.Delete(ctx, key); err != nil {
			logger.Error("delete orphan failed", "key", key, "err", err)
			continue
		}
		logger.Info("deleted orphan", "key", key)
	}
}

// referencedKeys expands each record into the blob keys it accounts for:
// the original's storage key plus, for gallery records, the derivative
// under the sibling thumbnails prefix.
func referencedKeys(records []meta.Record) map[string]bool {
	gallery := ingest.GalleryPolicy()
	galleryPrefix := gallery.ObjectKey("", "") + "/"

	referenced := make(map[string]bool, 2*len(records))
	for _, rec := range records {
		referenced[rec.StorageKey] = true
		if strings.HasPrefix(rec.StorageKey, galleryPrefix) {
			referenced[gallery.DerivativeKey(rec.OwnerRef, path.Base(rec.StorageKey))] = true
		}
	}
	return referenced
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
