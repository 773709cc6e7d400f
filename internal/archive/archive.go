// Package archive implements the Archive half of the Completion Notifier
// & Archive (C12): a best-effort copy of the final report set into durable
// blob storage outside outDir. Grounded on the teacher's
// internal/storage/local and internal/storage/gcs blob stores, unified
// behind one interface with a noop fallback so the orchestrator never
// special-cases "no archive configured".
package archive

import (
	"context"
	"io"
)

// BlobStore uploads one named object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ReportFiles are the fixed artifact names archived per completed run,
// per spec.md Section 4.12.
var ReportFiles = []string{
	"site_catalog.csv",
	"url-existence.csv",
	"comparison.csv",
	"tree.txt",
}

// Archiver copies a run's report set into a BlobStore under a
// runID-prefixed key, reading each file from outDir via a caller-supplied
// opener so this package never depends on internal/orchestrator.
type Archiver struct {
	store BlobStore
}

// NewArchiver wraps a BlobStore in an Archiver.
func NewArchiver(store BlobStore) *Archiver {
	return &Archiver{store: store}
}

// Opener reads one report file's bytes, or an error if it's absent (report
// writers are best-effort themselves; a missing output is not fatal here).
type Opener func(name string) (io.ReadCloser, error)

// ArchiveRun uploads every file in ReportFiles found via open, prefixed by
// runID, returning the URIs of everything successfully archived. Files
// that fail to open are skipped rather than aborting the whole archive.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, open Opener) ([]string, error) {
	var uris []string
	for _, name := range ReportFiles {
		rc, err := open(name)
		if err != nil {
			continue
		}
		uri, err := a.store.PutObject(ctx, runID+"/"+name, contentTypeFor(name), rc)
		_ = rc.Close()
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

func contentTypeFor(name string) string {
	if len(name) > 4 && name[len(name)-4:] == ".csv" {
		return "text/csv"
	}
	return "text/plain"
}
