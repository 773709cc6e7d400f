package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

func newGCSClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return client, nil
}
