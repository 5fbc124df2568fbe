package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/frietkaart/media-ingest/internal/blob"
	"github.com/frietkaart/media-ingest/internal/listing"
	"github.com/frietkaart/media-ingest/internal/meta"
)

type testEnv struct {
	svc      *Service
	blobs    *blob.MemoryStore
	records  *meta.MemoryStore
	listings *listing.MemoryStore
}

func newTestEnv(t *testing.T, policy Policy) *testEnv {
	t.Helper()
	env := &testEnv{
		blobs:    blob.NewMemoryStore(),
		records:  meta.NewMemoryStore(),
		listings: listing.NewMemoryStore(),
	}
	env.svc = New(policy, env.blobs, env.records, env.listings, nil)
	return env
}

func pngUpload(t *testing.T, name string, w, h int) Upload {
	t.Helper()

	im := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			im.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return Upload{Filename: name, MimeType: "image/png", Data: buf.Bytes()}
}

func collectEvents(tr *Tracker) (<-chan []Event, *Tracker) {
	out := make(chan []Event, 1)
	go func() {
		var events []Event
		for ev := range tr.Events() {
			events = append(events, ev)
		}
		out <- events
	}()
	return out, tr
}

func TestIngestEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	up := pngUpload(t, "frietkot.png", 1200, 800)
	eventsCh, tr := collectEvents(NewTracker())

	rec, err := env.svc.Ingest(ctx, up, Metadata{
		UploadedBy: "user-1",
		Title:      "Frietkot",
		Category:   "food",
		Tags:       []string{"frites"},
	}, tr)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if rec.ID == "" {
		t.Fatalf("record has no id")
	}
	if rec.Width != 1200 || rec.Height != 800 {
		t.Errorf("source dimensions got %dx%d, want 1200x800", rec.Width, rec.Height)
	}
	if rec.ByteSize != int64(len(up.Data)) {
		t.Errorf("byteSize = %d, want %d", rec.ByteSize, len(up.Data))
	}
	if rec.LikeCount != 0 || rec.DownloadCount != 0 {
		t.Errorf("counters must start at zero, got %d/%d", rec.LikeCount, rec.DownloadCount)
	}
	if !strings.HasPrefix(rec.StorageKey, "gallery/") || strings.Contains(rec.StorageKey, "thumbnails") {
		t.Errorf("unexpected storage key %q", rec.StorageKey)
	}

	// Original retrievable by key, derivative by the sibling thumbnail key.
	if _, err := env.blobs.Get(ctx, rec.StorageKey); err != nil {
		t.Errorf("original blob missing: %v", err)
	}
	name := strings.TrimPrefix(rec.StorageKey, "gallery/")
	thumbData, err := env.blobs.Get(ctx, "gallery/thumbnails/"+name)
	if err != nil {
		t.Fatalf("derivative blob missing: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumbData))
	if err != nil {
		t.Fatalf("decode derivative: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 267 {
		t.Errorf("derivative dimensions got %dx%d, want 400x267", cfg.Width, cfg.Height)
	}
	if rec.DerivativeURL == rec.OriginalURL {
		t.Errorf("gallery derivative URL must differ from the original URL")
	}

	events := <-eventsCh
	assertMonotonicComplete(t, events)
}

func assertMonotonicComplete(t *testing.T, events []Event) {
	t.Helper()

	if len(events) == 0 {
		t.Fatalf("no progress events emitted")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Fatalf("progress went backwards at %d: %v", i, events)
		}
	}
	last := events[len(events)-1]
	if last.Percent != 100 || last.Status != StatusComplete {
		t.Fatalf("terminal event = %+v, want 100/complete", last)
	}
}

func TestIngestValidationBoundary(t *testing.T) {
	policy := GalleryPolicy()
	policy.MaxBytes = 1024

	tests := []struct {
		name     string
		mimeType string
		size     int
		wantErr  bool
	}{
		{"exactly at ceiling", "image/jpeg", 1024, false},
		{"one byte over", "image/jpeg", 1025, true},
		{"allowed type webp", "image/webp", 10, false},
		{"allowed type gif", "image/gif", 10, false},
		{"disallowed type", "image/tiff", 10, true},
		{"not an image type", "application/pdf", 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t, policy)

			up := Upload{Filename: "x.bin", MimeType: tt.mimeType, Data: make([]byte, tt.size)}
			_, err := env.svc.Ingest(ctx, up, Metadata{}, nil)

			if !tt.wantErr {
				// Garbage bytes still ingest via the derivation fallback.
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			// Fail-fast: nothing may have been uploaded or persisted.
			if env.blobs.Len() != 0 || env.records.Len() != 0 {
				t.Fatalf("validation failure left state behind: %d blobs, %d records",
					env.blobs.Len(), env.records.Len())
			}
		})
	}
}

func TestIngestGIFOnlyAllowedForGallery(t *testing.T) {
	ctx := context.Background()
	up := Upload{Filename: "x.gif", MimeType: "image/gif", Data: []byte{1, 2, 3}}

	gallery := newTestEnv(t, GalleryPolicy())
	if _, err := gallery.svc.Ingest(ctx, up, Metadata{}, nil); err != nil {
		t.Fatalf("gallery must accept GIF: %v", err)
	}

	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-1")
	_, err := env.svc.Ingest(ctx, up, Metadata{OwnerRef: "friterie-1"}, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("listing variant must reject GIF, got %v", err)
	}
}

func TestIngestFallbackOnUndecodableFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	data := []byte("valid mime, invalid pixels")
	eventsCh, tr := collectEvents(NewTracker())

	rec, err := env.svc.Ingest(ctx, Upload{Filename: "broken.jpg", MimeType: "image/jpeg", Data: data}, Metadata{}, tr)
	if err != nil {
		t.Fatalf("fallback ingestion must not fail: %v", err)
	}

	assertMonotonicComplete(t, <-eventsCh)

	// Derivative is a verbatim copy of the original.
	name := strings.TrimPrefix(rec.StorageKey, "gallery/")
	thumbData, err := env.blobs.Get(ctx, "gallery/thumbnails/"+name)
	if err != nil {
		t.Fatalf("derivative blob missing: %v", err)
	}
	if !bytes.Equal(thumbData, data) {
		t.Fatalf("fallback derivative is not byte-identical to the original")
	}
	if rec.Width != 800 || rec.Height != 600 {
		t.Fatalf("fallback dimensions got %dx%d, want 800x600", rec.Width, rec.Height)
	}
}

func TestIngestListingPolicySharesURL(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-7")

	rec, err := env.svc.Ingest(ctx, pngUpload(t, "front.png", 300, 200), Metadata{OwnerRef: "friterie-7"}, nil)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if !strings.HasPrefix(rec.StorageKey, "friteries/images/friterie-7/") {
		t.Errorf("unexpected storage key %q", rec.StorageKey)
	}
	if rec.DerivativeURL != rec.OriginalURL {
		t.Errorf("listing variant stores no derivative; URLs must match")
	}
	if env.blobs.Len() != 1 {
		t.Errorf("expected a single stored object, got %d", env.blobs.Len())
	}

	media, err := env.listings.GetMedia(ctx, "friterie-7")
	if err != nil {
		t.Fatalf("GetMedia returned error: %v", err)
	}
	if len(media.ImageURLs) != 1 || media.ImageURLs[0] != rec.OriginalURL {
		t.Errorf("listing imageUrls = %v, want [%s]", media.ImageURLs, rec.OriginalURL)
	}
	if media.PrimaryImageURL != "" {
		t.Errorf("non-primary upload must not set primaryImageUrl")
	}
}

func TestIngestPrimaryReplacesListingMedia(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-7")

	if _, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 100, 100), Metadata{OwnerRef: "friterie-7"}, nil); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	rec, err := env.svc.Ingest(ctx, pngUpload(t, "logo.png", 100, 100), Metadata{OwnerRef: "friterie-7", Primary: true}, nil)
	if err != nil {
		t.Fatalf("primary ingest: %v", err)
	}

	media, err := env.listings.GetMedia(ctx, "friterie-7")
	if err != nil {
		t.Fatalf("GetMedia returned error: %v", err)
	}
	if media.PrimaryImageURL != rec.OriginalURL {
		t.Errorf("primaryImageUrl = %q, want %q", media.PrimaryImageURL, rec.OriginalURL)
	}
	if len(media.ImageURLs) != 1 || media.ImageURLs[0] != rec.OriginalURL {
		t.Errorf("primary upload must reset imageUrls to a singleton, got %v", media.ImageURLs)
	}
}

func TestIngestPrimaryDemotesExistingPrimary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-p")

	first, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 60, 60),
		Metadata{OwnerRef: "friterie-p", Primary: true}, nil)
	if err != nil {
		t.Fatalf("first primary ingest: %v", err)
	}
	second, err := env.svc.Ingest(ctx, pngUpload(t, "b.png", 60, 60),
		Metadata{OwnerRef: "friterie-p", Primary: true}, nil)
	if err != nil {
		t.Fatalf("second primary ingest: %v", err)
	}

	owner := "friterie-p"
	recs, err := env.records.Query(ctx, meta.Filters{OwnerRef: &owner})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	primaries := 0
	for _, rec := range recs {
		if rec.IsPrimary {
			primaries++
			if rec.ID != second.ID {
				t.Errorf("wrong record is primary: %s", rec.ID)
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary after two primary ingests, got %d", primaries)
	}

	demoted, err := env.records.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if demoted.IsPrimary {
		t.Errorf("first record must have been demoted")
	}
	media, err := env.listings.GetMedia(ctx, "friterie-p")
	if err != nil {
		t.Fatalf("GetMedia returned error: %v", err)
	}
	if media.PrimaryImageURL != second.OriginalURL {
		t.Errorf("primaryImageUrl = %q, want %q", media.PrimaryImageURL, second.OriginalURL)
	}
}

func TestIngestOriginalUploadFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())
	svc := New(GalleryPolicy(), failingPutStore{env.blobs, "gallery/"}, env.records, env.listings, nil)

	eventsCh, tr := collectEvents(NewTracker())
	_, err := svc.Ingest(ctx, pngUpload(t, "x.png", 100, 100), Metadata{}, tr)

	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if terr.Stage != StageUploadingOriginal {
		t.Errorf("failing stage = %q, want %q", terr.Stage, StageUploadingOriginal)
	}
	assertTerminalError(t, <-eventsCh)
	if env.blobs.Len() != 0 || env.records.Len() != 0 {
		t.Fatalf("failed upload left state behind: %d blobs, %d records",
			env.blobs.Len(), env.records.Len())
	}
}

func TestIngestDerivativeUploadFailureCompensates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())
	svc := New(GalleryPolicy(), failingPutStore{env.blobs, "gallery/thumbnails/"}, env.records, env.listings, nil)

	eventsCh, tr := collectEvents(NewTracker())
	_, err := svc.Ingest(ctx, pngUpload(t, "x.png", 100, 100), Metadata{}, tr)

	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if terr.Stage != StageUploadingDerivative {
		t.Errorf("failing stage = %q, want %q", terr.Stage, StageUploadingDerivative)
	}
	assertTerminalError(t, <-eventsCh)
	// The already-uploaded original must have been deleted again.
	if env.blobs.Len() != 0 {
		t.Fatalf("expected compensating blob cleanup, %d objects remain", env.blobs.Len())
	}
	if env.records.Len() != 0 {
		t.Fatalf("no record may be persisted for a failed transfer")
	}
}

func assertTerminalError(t *testing.T, events []Event) {
	t.Helper()

	if len(events) == 0 {
		t.Fatalf("no progress events emitted")
	}
	last := events[len(events)-1]
	if last.Status != StatusError || last.Error == "" {
		t.Fatalf("terminal event = %+v, want error status with message", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Status == StatusError {
			t.Fatalf("error status emitted before the terminal event: %v", events)
		}
	}
}

// failingPutStore rejects Put for keys under failPrefix and delegates
// everything else.
type failingPutStore struct {
	blob.Store
	failPrefix string
}

func (s failingPutStore) Put(ctx context.Context, key, contentType string, data []byte, progress blob.ProgressFunc) (string, error) {
	if strings.HasPrefix(key, s.failPrefix) {
		return "", errors.New("object store unavailable")
	}
	return s.Store.Put(ctx, key, contentType, data, progress)
}

func TestIngestCompensatesOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())
	svc := New(GalleryPolicy(), env.blobs, failingCreateStore{env.records}, env.listings, nil)

	_, err := svc.Ingest(ctx, pngUpload(t, "x.png", 100, 100), Metadata{}, nil)
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if env.blobs.Len() != 0 {
		t.Fatalf("expected compensating blob cleanup, %d objects remain", env.blobs.Len())
	}
}

type failingCreateStore struct {
	meta.Store
}

func (failingCreateStore) Create(ctx context.Context, rec *meta.Record) (string, error) {
	return "", errors.New("document store unavailable")
}

func TestDeleteCompleteness(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-1")

	rec, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 120, 90), Metadata{OwnerRef: "friterie-1", Primary: true}, nil)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if err := env.svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := env.blobs.Get(ctx, rec.StorageKey); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("original blob still present")
	}
	if _, err := env.records.Get(ctx, rec.ID); !errors.Is(err, meta.ErrNotFound) {
		t.Errorf("metadata record still present")
	}
	media, err := env.listings.GetMedia(ctx, "friterie-1")
	if err != nil {
		t.Fatalf("GetMedia returned error: %v", err)
	}
	if media.PrimaryImageURL != "" || len(media.ImageURLs) != 0 {
		t.Errorf("listing still references deleted image: %+v", media)
	}
}

func TestDeleteRemovesDerivativeBlob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	rec, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 500, 500), Metadata{}, nil)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if env.blobs.Len() != 2 {
		t.Fatalf("expected original + derivative, got %d objects", env.blobs.Len())
	}

	if err := env.svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if env.blobs.Len() != 0 {
		t.Fatalf("delete left %d blobs behind", env.blobs.Len())
	}
}

func TestDeleteUnknownIDIsNotFound(t *testing.T) {
	env := newTestEnv(t, GalleryPolicy())
	err := env.svc.Delete(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPromoteToPrimaryExclusivity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ListingPolicy())
	env.listings.Add("friterie-9")

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := env.svc.Ingest(ctx, pngUpload(t, fmt.Sprintf("img%d.png", i), 50, 50),
			Metadata{OwnerRef: "friterie-9", Primary: i == 0}, nil)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	if err := env.svc.PromoteToPrimary(ctx, ids[2]); err != nil {
		t.Fatalf("PromoteToPrimary returned error: %v", err)
	}

	owner := "friterie-9"
	recs, err := env.records.Query(ctx, meta.Filters{OwnerRef: &owner})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	primaries := 0
	for _, rec := range recs {
		if rec.IsPrimary {
			primaries++
			if rec.ID != ids[2] {
				t.Errorf("wrong record is primary: %s", rec.ID)
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}

	promoted, err := env.records.Get(ctx, ids[2])
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	media, err := env.listings.GetMedia(ctx, "friterie-9")
	if err != nil {
		t.Fatalf("GetMedia returned error: %v", err)
	}
	if media.PrimaryImageURL != promoted.OriginalURL {
		t.Errorf("listing primaryImageUrl = %q, want %q", media.PrimaryImageURL, promoted.OriginalURL)
	}
}

func TestPromoteToPrimaryRejectsGalleryRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	rec, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 40, 40), Metadata{}, nil)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	var verr *ValidationError
	if err := env.svc.PromoteToPrimary(ctx, rec.ID); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for ownerless record, got %v", err)
	}
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	rec, err := env.svc.Ingest(ctx, pngUpload(t, "a.png", 40, 40), Metadata{}, nil)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := env.svc.IncrementCounter(ctx, rec.ID, meta.CounterLikes); err != nil {
			t.Fatalf("IncrementCounter returned error: %v", err)
		}
	}
	if err := env.svc.IncrementCounter(ctx, rec.ID, meta.CounterDownloads); err != nil {
		t.Fatalf("IncrementCounter returned error: %v", err)
	}

	got, err := env.records.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.LikeCount != 3 || got.DownloadCount != 1 {
		t.Fatalf("counters = %d/%d, want 3/1", got.LikeCount, got.DownloadCount)
	}

	if err := env.svc.IncrementCounter(ctx, rec.ID, "viewCount"); err == nil {
		t.Fatalf("expected error for unknown counter")
	}
	if err := env.svc.IncrementCounter(ctx, "missing", meta.CounterLikes); !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestIngestBatchFansOut(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, GalleryPolicy())

	uploads := []Upload{
		pngUpload(t, "a.png", 100, 80),
		{Filename: "bad.tiff", MimeType: "image/tiff", Data: []byte{1}},
		pngUpload(t, "c.png", 80, 100),
	}

	var mu sync.Mutex
	lastPercent := map[int]int{}
	terminal := map[int]Event{}

	results := env.svc.IngestBatch(ctx, uploads, Metadata{UploadedBy: "user-2"}, func(i int, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Percent < lastPercent[i] {
			t.Errorf("file %d progress went backwards", i)
		}
		lastPercent[i] = ev.Percent
		terminal[i] = ev
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("good files failed: %v / %v", results[0].Err, results[2].Err)
	}
	var verr *ValidationError
	if !errors.As(results[1].Err, &verr) {
		t.Fatalf("expected ValidationError for file 1, got %v", results[1].Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if terminal[0].Status != StatusComplete || terminal[2].Status != StatusComplete {
		t.Errorf("good files must end complete: %+v / %+v", terminal[0], terminal[2])
	}
	if terminal[1].Status != StatusError {
		t.Errorf("bad file must end with error status, got %+v", terminal[1])
	}
}

func TestIngestBatchCanceledContext(t *testing.T) {
	env := newTestEnv(t, GalleryPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := env.svc.IngestBatch(ctx, []Upload{pngUpload(t, "a.png", 10, 10)}, Metadata{}, nil)
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected canceled result, got %+v", results)
	}
	if env.blobs.Len() != 0 || env.records.Len() != 0 {
		t.Fatalf("canceled batch left side effects")
	}
}
