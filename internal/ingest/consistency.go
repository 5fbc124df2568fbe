package ingest

import (
	"context"
	"fmt"
	"slices"

	"github.com/frietkaart/media-ingest/internal/listing"
	"github.com/frietkaart/media-ingest/internal/meta"
)

// consistencyUpdater propagates image-set changes onto the owning listing's
// primaryImageUrl and imageUrls. It is the only writer of those fields from
// this pipeline and always runs after the metadata store has been mutated.
type consistencyUpdater struct {
	listings listing.Store
}

func (u consistencyUpdater) recordCreated(ctx context.Context, rec *meta.Record) error {
	if rec.OwnerRef == "" {
		return nil
	}

	if rec.IsPrimary {
		// A new primary replaces the listing's media set outright.
		return u.listings.SetMedia(ctx, rec.OwnerRef, listing.Media{
			PrimaryImageURL: rec.OriginalURL,
			ImageURLs:       []string{rec.OriginalURL},
		})
	}

	media, err := u.listings.GetMedia(ctx, rec.OwnerRef)
	if err != nil {
		return fmt.Errorf("load listing media: %w", err)
	}
	media.ImageURLs = append(media.ImageURLs, rec.OriginalURL)
	return u.listings.SetMedia(ctx, rec.OwnerRef, *media)
}

func (u consistencyUpdater) recordDeleted(ctx context.Context, rec *meta.Record) error {
	if rec.OwnerRef == "" {
		return nil
	}

	media, err := u.listings.GetMedia(ctx, rec.OwnerRef)
	if err != nil {
		return fmt.Errorf("load listing media: %w", err)
	}

	media.ImageURLs = slices.DeleteFunc(media.ImageURLs, func(url string) bool {
		return url == rec.OriginalURL
	})
	if rec.IsPrimary {
		media.PrimaryImageURL = ""
	}
	return u.listings.SetMedia(ctx, rec.OwnerRef, *media)
}

func (u consistencyUpdater) recordPromoted(ctx context.Context, rec *meta.Record) error {
	return u.listings.SetMedia(ctx, rec.OwnerRef, listing.Media{
		PrimaryImageURL: rec.OriginalURL,
		ImageURLs:       []string{rec.OriginalURL},
	})
}
