package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/frietkaart/media-ingest/internal/blob"
	"github.com/frietkaart/media-ingest/internal/img"
	"github.com/frietkaart/media-ingest/internal/listing"
	"github.com/frietkaart/media-ingest/internal/meta"
)

// Upload is one user-selected file handed to the pipeline.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// Metadata is the caller-supplied description persisted with the record.
type Metadata struct {
	OwnerRef       string
	UploadedBy     string
	Title          string
	Description    string
	Category       string
	VisibilityTier string
	Tags           []string
	Featured       bool

	// Primary requests that the new image become the owner's primary image,
	// displacing any record that currently holds the flag.
	Primary bool
}

// BatchResult is the outcome for one file of a batch ingestion.
type BatchResult struct {
	Record *meta.Record
	Err    error
}

// Service orchestrates the ingestion pipeline for one policy. Distinct
// policies (gallery vs listing) get distinct Service instances over the
// same underlying stores.
type Service struct {
	policy  Policy
	blobs   blob.Store
	records meta.Store
	owners  consistencyUpdater
	logger  *slog.Logger
}

func New(policy Policy, blobs blob.Store, records meta.Store, listings listing.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		policy:  policy,
		blobs:   blobs,
		records: records,
		owners:  consistencyUpdater{listings: listings},
		logger:  logger.With("scope", string(policy.Scope)),
	}
}

// Policy returns the policy this service runs under.
func (s *Service) Policy() Policy { return s.policy }

// Ingest runs the full pipeline for one file:
//
//	Validating -> UploadingOriginal -> GeneratingDerivative ->
//	UploadingDerivative -> ProbingDimensions -> PersistingMetadata ->
//	UpdatingOwner -> Complete
//
// tr may be nil when the caller does not care about progress; otherwise the
// caller must drain tr.Events(). Thumbnail and dimension failures substitute
// data instead of failing the ingestion; everything else aborts it. When the
// metadata write fails after the blobs are already uploaded, both objects
// are deleted best-effort before the error is returned.
func (s *Service) Ingest(ctx context.Context, up Upload, md Metadata, tr *Tracker) (*meta.Record, error) {
	if tr == nil {
		tr = NewTracker()
	}

	tr.stage(StageValidating, StatusUploading, 0)
	if err := s.policy.Validate(up); err != nil {
		tr.fail(err)
		return nil, err
	}

	name := StorageName(up.Filename)
	key := s.policy.ObjectKey(md.OwnerRef, name)
	logger := s.logger.With("key", key)
	logger.Info("ingest starting", "filename", up.Filename, "bytes", len(up.Data), "owner", md.OwnerRef)

	originalURL, err := s.blobs.Put(ctx, key, up.MimeType, up.Data, func(transferred, total int64) {
		tr.bytes(StageUploadingOriginal, 0, pctUploadOriginalEnd, transferred, total)
	})
	if err != nil {
		terr := &TransferError{Stage: StageUploadingOriginal, Err: err}
		tr.fail(terr)
		return nil, terr
	}

	derivativeURL := originalURL
	if s.policy.Derivative {
		tr.stage(StageGeneratingDerivative, StatusProcessing, pctUploadOriginalEnd)
		thumb := img.Derive(up.Data, s.policy.ThumbWidth, s.policy.ThumbHeight, up.MimeType)
		if thumb.Fallback {
			logger.Warn("thumbnail derivation fell back to original bytes")
		}

		derivativeURL, err = s.blobs.Put(ctx, s.policy.DerivativeKey(md.OwnerRef, name), thumb.MimeType, thumb.Data,
			func(transferred, total int64) {
				tr.bytes(StageUploadingDerivative, pctUploadOriginalEnd, pctUploadDerivativeEnd, transferred, total)
			})
		if err != nil {
			s.removeUploaded(ctx, md.OwnerRef, name, logger)
			terr := &TransferError{Stage: StageUploadingDerivative, Err: err}
			tr.fail(terr)
			return nil, terr
		}
	}

	tr.stage(StageProbingDimensions, StatusProcessing, pctProbing)
	width, height, perr := img.Probe(up.Data)
	if perr != nil {
		// Dimensions are descriptive, not load-bearing.
		width, height = img.DefaultWidth, img.DefaultHeight
		logger.Warn("dimension probe failed, using defaults", "err", perr)
	}

	rec := &meta.Record{
		OwnerRef:       md.OwnerRef,
		OriginalURL:    originalURL,
		DerivativeURL:  derivativeURL,
		StorageKey:     key,
		ByteSize:       int64(len(up.Data)),
		MimeType:       up.MimeType,
		Width:          width,
		Height:         height,
		UploadedBy:     md.UploadedBy,
		UploadedAt:     time.Now().UTC(),
		IsPrimary:      md.Primary,
		Tags:           md.Tags,
		Category:       md.Category,
		Title:          md.Title,
		Description:    md.Description,
		VisibilityTier: md.VisibilityTier,
		Featured:       md.Featured,
	}

	tr.stage(StagePersistingMetadata, StatusProcessing, pctPersisting)
	if _, err := s.records.Create(ctx, rec); err != nil {
		// The blobs are already up; delete them so they do not linger as
		// orphans. A crash before this line still leaves an orphaned pair,
		// which cmd/reconcile exists to find.
		s.removeUploaded(ctx, md.OwnerRef, name, logger)
		perr := fmt.Errorf("persist metadata: %w", err)
		tr.fail(perr)
		return nil, perr
	}

	tr.stage(StageUpdatingOwner, StatusProcessing, pctUpdatingOwner)
	if rec.IsPrimary && rec.OwnerRef != "" {
		// A new primary displaces the owner's current one.
		if err := s.demoteSiblings(ctx, rec.OwnerRef, rec.ID); err != nil {
			tr.fail(err)
			return nil, err
		}
	}
	if err := s.owners.recordCreated(ctx, rec); err != nil {
		oerr := fmt.Errorf("update owner: %w", err)
		tr.fail(oerr)
		return nil, oerr
	}

	tr.complete()
	logger.Info("ingest complete", "record_id", rec.ID, "width", width, "height", height)
	return rec, nil
}

// IngestBatch fans out one independent pipeline per file. Per-file progress
// is forwarded to onEvent with the file's index; there is no ordering
// guarantee across files. A canceled context stops files that have not
// started yet without side effects.
func (s *Service) IngestBatch(ctx context.Context, uploads []Upload, shared Metadata, onEvent func(index int, ev Event)) []BatchResult {
	results := make([]BatchResult, len(uploads))

	var wg sync.WaitGroup
	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, up Upload) {
			defer wg.Done()

			var tr *Tracker
			done := make(chan struct{})
			if onEvent != nil {
				tr = NewTracker()
				go func() {
					defer close(done)
					for ev := range tr.Events() {
						onEvent(i, ev)
					}
				}()
			} else {
				close(done)
			}

			rec, err := s.Ingest(ctx, up, shared, tr)
			<-done
			results[i] = BatchResult{Record: rec, Err: err}
		}(i, up)
	}
	wg.Wait()

	return results
}

// Delete removes the record, both blobs, and the record's URL from the
// owning listing. An unknown id is a terminal NotFound, never a partial
// success.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, rec.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("delete original blob: %w", err)
	}
	if s.policy.Derivative {
		dkey := s.policy.DerivativeKey(rec.OwnerRef, path.Base(rec.StorageKey))
		if err := s.blobs.Delete(ctx, dkey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("delete derivative blob: %w", err)
		}
	}

	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.owners.recordDeleted(ctx, rec); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}

	s.logger.Info("record deleted", "record_id", id, "key", rec.StorageKey)
	return nil
}

// PromoteToPrimary makes the target the single primary image of its owner.
// Siblings are demoted before the target is promoted, so an interruption
// leaves zero primaries rather than two. The sequence is read-then-write,
// not transactional; concurrent promotions on one owner can still race.
func (s *Service) PromoteToPrimary(ctx context.Context, id string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.OwnerRef == "" {
		return &ValidationError{Reason: "record has no owner to promote within"}
	}

	if err := s.demoteSiblings(ctx, rec.OwnerRef, id); err != nil {
		return err
	}
	if err := s.records.Update(ctx, id, map[string]any{"isPrimary": true}); err != nil {
		return fmt.Errorf("promote %q: %w", id, err)
	}

	rec.IsPrimary = true
	if err := s.owners.recordPromoted(ctx, rec); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}

	s.logger.Info("record promoted to primary", "record_id", id, "owner", rec.OwnerRef)
	return nil
}

// IncrementCounter bumps likeCount or downloadCount by one. This is a
// read-modify-write, not a conditional increment: concurrent calls on the
// same record can lose updates.
func (s *Service) IncrementCounter(ctx context.Context, id, counter string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}

	var next int64
	switch counter {
	case meta.CounterLikes:
		next = rec.LikeCount + 1
	case meta.CounterDownloads:
		next = rec.DownloadCount + 1
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}
	return s.records.Update(ctx, id, map[string]any{counter: next})
}

// Query returns records matching the filters, newest first.
func (s *Service) Query(ctx context.Context, f meta.Filters) ([]meta.Record, error) {
	return s.records.Query(ctx, f)
}

// demoteSiblings clears isPrimary on every record of ownerRef except keepID,
// restoring the one-primary-per-owner invariant before keepID takes over.
func (s *Service) demoteSiblings(ctx context.Context, ownerRef, keepID string) error {
	siblings, err := s.records.Query(ctx, meta.Filters{OwnerRef: &ownerRef})
	if err != nil {
		return fmt.Errorf("load siblings: %w", err)
	}
	for _, sib := range siblings {
		if sib.ID != keepID && sib.IsPrimary {
			if err := s.records.Update(ctx, sib.ID, map[string]any{"isPrimary": false}); err != nil {
				return fmt.Errorf("demote %q: %w", sib.ID, err)
			}
		}
	}
	return nil
}

// removeUploaded deletes both blob objects of a failed ingestion. Cleanup
// runs detached from the caller's context so cancellation cannot strand the
// objects it is trying to remove.
func (s *Service) removeUploaded(ctx context.Context, ownerRef, name string, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	key := s.policy.ObjectKey(ownerRef, name)
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		logger.Warn("cleanup of original blob failed", "err", err)
	}
	if s.policy.Derivative {
		dkey := s.policy.DerivativeKey(ownerRef, name)
		if err := s.blobs.Delete(ctx, dkey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			logger.Warn("cleanup of derivative blob failed", "err", err)
		}
	}
}
