package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSBlobStore writes archived artifacts to a Google Cloud Storage
// bucket, grounded on the teacher's internal/storage/gcs blob store.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
}

// NewGCSBlobStore wraps an existing storage.Client bound to bucket.
func NewGCSBlobStore(client *storage.Client, bucket string) (*GCSBlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSBlobStore{client: client, bucket: bucket}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *GCSBlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}
