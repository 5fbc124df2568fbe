// Package setup builds the pipeline's concrete dependencies from the
// environment. Construction is explicit: binaries create their stores and
// services here and close them on shutdown, instead of sharing package-level
// singletons.
package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/frietkaart/media-ingest/internal/blob"
	"github.com/frietkaart/media-ingest/internal/ingest"
	"github.com/frietkaart/media-ingest/internal/listing"
	"github.com/frietkaart/media-ingest/internal/meta"
)

// Config carries the store settings shared by every binary.
type Config struct {
	Minio              blob.MinioConfig
	FirestoreProjectID string
	CredentialsFile    string
	ImagesCollection   string
	ListingsCollection string
}

// Load reads the store configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Minio: blob.MinioConfig{
			Endpoint:      Getenv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:     Getenv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:     Getenv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:        Getenv("MINIO_BUCKET", "media"),
			UseSSL:        Getenv("MINIO_USE_SSL", "false") == "true",
			PublicBaseURL: Getenv("MINIO_PUBLIC_URL", ""),
		},
		FirestoreProjectID: Getenv("FIRESTORE_PROJECT_ID", ""),
		CredentialsFile:    Getenv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ImagesCollection:   Getenv("IMAGES_COLLECTION", meta.DefaultCollection),
		ListingsCollection: Getenv("LISTINGS_COLLECTION", listing.DefaultCollection),
	}

	if cfg.FirestoreProjectID == "" {
		return Config{}, fmt.Errorf("FIRESTORE_PROJECT_ID is required")
	}
	return cfg, nil
}

// Getenv returns the environment value for key, or def when unset.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Stores bundles the shared mutable dependencies of the pipeline.
type Stores struct {
	Blobs    blob.Store
	Records  meta.Store
	Listings listing.Store

	closers []io.Closer
}

// BuildStores connects to the blob store and the document store.
func BuildStores(ctx context.Context, cfg Config) (*Stores, error) {
	blobs, err := blob.NewMinioStore(ctx, cfg.Minio)
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}

	records, err := meta.NewFirestoreStore(ctx, cfg.FirestoreProjectID, cfg.ImagesCollection, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("build metadata store: %w", err)
	}

	listings, err := listing.NewFirestoreStore(ctx, cfg.FirestoreProjectID, cfg.ListingsCollection, cfg.CredentialsFile)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("build listing store: %w", err)
	}

	return &Stores{
		Blobs:    blobs,
		Records:  records,
		Listings: listings,
		closers:  []io.Closer{records, listings},
	}, nil
}

// Close releases the underlying clients.
func (s *Stores) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}

// Services creates one orchestrator per ingestion policy over the stores.
func Services(st *Stores, logger *slog.Logger) map[ingest.Scope]*ingest.Service {
	return map[ingest.Scope]*ingest.Service{
		ingest.ScopeGallery: ingest.New(ingest.GalleryPolicy(), st.Blobs, st.Records, st.Listings, logger),
		ingest.ScopeListing: ingest.New(ingest.ListingPolicy(), st.Blobs, st.Records, st.Listings, logger),
	}
}
