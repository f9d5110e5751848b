package artifacts

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSStore writes artifacts as objects in a single bucket, named by key.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore assumes the client is authenticated via the ambient
// environment (GOOGLE_APPLICATION_CREDENTIALS), matching the rest of this
// codebase's GCS usage.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put uploads data to bucket/key with the given content type.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write artifact object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize artifact object: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
