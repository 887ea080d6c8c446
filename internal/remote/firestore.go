package remote

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirestoreStore talks to Cloud Firestore. All methods classify backend
// errors through Classify so callers only ever see the remote sentinels.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestoreStore connects to the given project. Credentials resolution
// follows the SDK default chain unless credentialsFile is set.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string, logger *slog.Logger) (*FirestoreStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: connecting to firestore project %s: %w", projectID, err)
	}

	return &FirestoreStore{client: client, logger: logger}, nil
}

// Close releases the underlying gRPC connection.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// List fetches every document in the collection at path.
func (s *FirestoreStore) List(ctx context.Context, path string) ([]Document, error) {
	return s.collect(path, s.client.Collection(path).Documents(ctx))
}

// ListOrdered fetches every document ordered by the given field. Descending
// order is used for transactions so the newest history merges first.
func (s *FirestoreStore) ListOrdered(ctx context.Context, path, orderBy string, desc bool) ([]Document, error) {
	dir := firestore.Asc
	if desc {
		dir = firestore.Desc
	}

	return s.collect(path, s.client.Collection(path).OrderBy(orderBy, dir).Documents(ctx))
}

// Set writes a single document, overwriting any existing fields.
func (s *FirestoreStore) Set(ctx context.Context, path, id string, fields map[string]any) error {
	_, err := s.client.Collection(path).Doc(id).Set(ctx, translateSentinels(fields))
	if err != nil {
		return Classify("set "+path+"/"+id, err)
	}

	return nil
}

// Delete removes a single document. Deleting a missing document succeeds,
// matching the backend's semantics — delete propagation must be idempotent.
func (s *FirestoreStore) Delete(ctx context.Context, path, id string) error {
	if _, err := s.client.Collection(path).Doc(id).Delete(ctx); err != nil {
		return Classify("delete "+path+"/"+id, err)
	}

	return nil
}

// Commit applies all writes in one atomic batch: either every document is
// durably written or none are.
func (s *FirestoreStore) Commit(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	batch := s.client.Batch()
	for _, w := range writes {
		batch.Set(s.client.Collection(w.Path).Doc(w.ID), translateSentinels(w.Fields))
	}

	if _, err := batch.Commit(ctx); err != nil {
		return Classify(fmt.Sprintf("commit batch (%d writes)", len(writes)), err)
	}

	s.logger.Debug("remote batch committed", slog.Int("writes", len(writes)))

	return nil
}

// collect drains a document iterator into Document values.
func (s *FirestoreStore) collect(path string, iter *firestore.DocumentIterator) ([]Document, error) {
	defer iter.Stop()

	var docs []Document

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}

		if err != nil {
			return nil, Classify("list "+path, err)
		}

		docs = append(docs, Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}

	return docs, nil
}

// translateSentinels maps the package-level ServerTimestamp sentinel onto the
// SDK's marker value. Doing this at the boundary keeps the sync layer free of
// Firestore types.
func translateSentinels(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if IsServerTimestamp(v) {
			out[k] = firestore.ServerTimestamp
			continue
		}

		out[k] = v
	}

	return out
}
