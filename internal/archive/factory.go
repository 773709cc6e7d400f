package archive

import "context"

// New resolves a BlobStore from archive configuration: a local filesystem
// store when archiveDir is set, a GCS store when archiveBucket is set
// (archiveDir takes precedence when both are), else NoopBlobStore.
func New(ctx context.Context, archiveDir, archiveBucket string) (BlobStore, error) {
	if archiveDir != "" {
		return NewLocalBlobStore(archiveDir)
	}
	if archiveBucket != "" {
		client, err := newGCSClient(ctx)
		if err != nil {
			return nil, err
		}
		return NewGCSBlobStore(client, archiveBucket)
	}
	return NoopBlobStore{}, nil
}
