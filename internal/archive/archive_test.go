package archive

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBlobStorePutObjectWritesUnderBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/site_catalog.csv", "text/csv", bytes.NewBufferString("url,title\n"))
	require.NoError(t, err)
	require.Contains(t, uri, "run-1/site_catalog.csv")
	require.FileExists(t, filepath.Join(dir, "run-1", "site_catalog.csv"))
}

func TestLocalBlobStoreRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.csv", "text/csv", bytes.NewBufferString("x"))
	require.Error(t, err)
}

func TestNoopBlobStoreDrainsReaderAndReturnsEmptyURI(t *testing.T) {
	store := NoopBlobStore{}
	uri, err := store.PutObject(context.Background(), "run-1/tree.txt", "text/plain", bytes.NewBufferString("data"))
	require.NoError(t, err)
	require.Empty(t, uri)
}

type fakeBlobStore struct {
	uploaded map[string][]byte
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploaded[path] = data
	return "mem://" + path, nil
}

func TestArchiverArchiveRunSkipsMissingFiles(t *testing.T) {
	fake := &fakeBlobStore{uploaded: map[string][]byte{}}
	archiver := NewArchiver(fake)

	open := func(name string) (io.ReadCloser, error) {
		if name == "tree.txt" {
			return nil, io.ErrUnexpectedEOF
		}
		return io.NopCloser(bytes.NewBufferString("content:" + name)), nil
	}

	uris, err := archiver.ArchiveRun(context.Background(), "run-42", open)
	require.NoError(t, err)
	require.Len(t, uris, len(ReportFiles)-1)
	require.Contains(t, fake.uploaded, "run-42/site_catalog.csv")
	require.NotContains(t, fake.uploaded, "run-42/tree.txt")
}

func TestContentTypeFor(t *testing.T) {
	require.Equal(t, "text/csv", contentTypeFor("site_catalog.csv"))
	require.Equal(t, "text/plain", contentTypeFor("tree.txt"))
}
