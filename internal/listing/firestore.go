package listing

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding directory listings.
const DefaultCollection = "friteries"

// FirestoreStore implements Store on the listing collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(ctx context.Context, projectID, collection, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) Close() error { return s.client.Close() }

func (s *FirestoreStore) GetMedia(ctx context.Context, ownerRef string) (*Media, error) {
	snap, err := s.client.Collection(s.collection).Doc(ownerRef).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("get listing %q: %w", ownerRef, ErrNotFound)
		}
		return nil, fmt.Errorf("get listing %q: %w", ownerRef, err)
	}

	var media Media
	if err := snap.DataTo(&media); err != nil {
		return nil, fmt.Errorf("decode listing %q: %w", ownerRef, err)
	}
	return &media, nil
}

func (s *FirestoreStore) SetMedia(ctx context.Context, ownerRef string, media Media) error {
	urls := media.ImageURLs
	if urls == nil {
		urls = []string{}
	}

	_, err := s.client.Collection(s.collection).Doc(ownerRef).Update(ctx, []firestore.Update{
		{Path: "primaryImageUrl", Value: media.PrimaryImageURL},
		{Path: "imageUrls", Value: urls},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("update listing %q: %w", ownerRef, ErrNotFound)
		}
		return fmt.Errorf("update listing %q: %w", ownerRef, err)
	}
	return nil
}
