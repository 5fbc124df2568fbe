package meta

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding image records.
const DefaultCollection = "images"

// FirestoreStore implements Store on a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore connects to Firestore. An empty collection selects
// DefaultCollection; credentialsFile may be empty to use ambient credentials.
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

// Close releases the underlying client.
func (s *FirestoreStore) Close() error { return s.client.Close() }

func (s *FirestoreStore) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) Create(ctx context.Context, rec *Record) (string, error) {
	ref, _, err := s.col().Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	rec.ID = ref.ID
	return ref.ID, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*Record, error) {
	snap, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get %q: %w", id, err)
	}

	var rec Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode %q: %w", id, err)
	}
	rec.ID = snap.Ref.ID
	return &rec, nil
}

func (s *FirestoreStore) Update(ctx context.Context, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if _, err := s.col().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("update %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("update %q: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.col().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) Query(ctx context.Context, f Filters) ([]Record, error) {
	q := s.col().Query
	if f.OwnerRef != nil {
		q = q.Where("ownerRef", "==", *f.OwnerRef)
	}
	if f.Category != nil {
		q = q.Where("category", "==", *f.Category)
	}
	if f.VisibilityTier != nil {
		q = q.Where("visibilityTier", "==", *f.VisibilityTier)
	}
	if f.Featured != nil {
		q = q.Where("featured", "==", *f.Featured)
	}
	q = q.OrderBy("uploadedAt", firestore.Desc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []Record
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		var rec Record
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode %q: %w", snap.Ref.ID, err)
		}
		rec.ID = snap.Ref.ID
		records = append(records, rec)
	}

	// Tag containment happens here, not in the query: array-contains cannot
	// be combined with the equality filters above.
	return filterByTag(records, f.Tag), nil
}
