package worker

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

// pageRecord is one entry in a worker's fetch-cache partition file, per
// spec.md Section 6's "fetch-cache.part{k}.json" layout.
type pageRecord struct {
	URL         string `json:"url"`
	FinalURL    string `json:"finalUrl"`
	StatusCode  int    `json:"statusCode"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UsedJS      bool   `json:"usedJs"`
}

// existenceRecord is one entry in a worker's url-existence partition file.
type existenceRecord struct {
	InputURL   string `json:"inputUrl"`
	Exists     bool   `json:"exists"`
	HTTPStatus int    `json:"httpStatus"`
	FinalURL   string `json:"finalUrl"`
}

// outputWriter accumulates one worker's partial output artifacts in
// memory and writes each to its part-file on Flush, matching the "single
// writer per worker, no cross-worker mutation" invariant in spec.md
// Section 5.
type outputWriter struct {
	outDir      string
	partIndex   int
	pages       []pageRecord
	existence   []existenceRecord
	finalURLs   []string
	edges       []crawlweb.Edge
}

func newOutputWriter(outDir string, partIndex int) *outputWriter {
	return &outputWriter{outDir: outDir, partIndex: partIndex}
}

func (w *outputWriter) recordPage(p crawlweb.Page) {
	w.pages = append(w.pages, pageRecord{
		URL: p.URL, FinalURL: p.FinalURL, StatusCode: p.StatusCode,
		Title: p.Title, Description: p.Description, UsedJS: p.UsedJS,
	})
	w.finalURLs = append(w.finalURLs, p.FinalURL)
}

func (w *outputWriter) recordExistence(r existenceRecord) {
	w.existence = append(w.existence, r)
}

func (w *outputWriter) recordEdges(edges []crawlweb.Edge) {
	w.edges = append(w.edges, edges...)
}

func (w *outputWriter) partPath(name string) string {
	return filepath.Join(w.outDir, fmt.Sprintf("%s.part%d.json", name, w.partIndex))
}

// Flush persists every accumulated artifact atomically.
func (w *outputWriter) Flush() error {
	if err := w.flushJSON("fetch-cache", w.pages); err != nil {
		return err
	}
	if err := w.flushJSON("urls-final", w.finalURLs); err != nil {
		return err
	}
	if len(w.existence) > 0 {
		if err := w.flushJSON("url-existence", w.existence); err != nil {
			return err
		}
		if err := w.flushExistenceCSV(); err != nil {
			return err
		}
	}
	if len(w.edges) > 0 {
		if err := w.flushEdgesNDJSON(); err != nil {
			return err
		}
	}
	return nil
}

func (w *outputWriter) flushJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return atomicfile.WriteFileAtomic(w.partPath(name), data, 0o644)
}

func (w *outputWriter) flushExistenceCSV() error {
	var buf []byte
	buf = append(buf, "inputUrl,exists,httpStatus,finalUrl\n"...)
	for _, r := range w.existence {
		buf = append(buf, fmt.Sprintf("%s,%t,%d,%s\n", csvEscape(r.InputURL), r.Exists, r.HTTPStatus, csvEscape(r.FinalURL))...)
	}
	path := filepath.Join(w.outDir, fmt.Sprintf("url-existence.part%d.csv", w.partIndex))
	return atomicfile.WriteFileAtomic(path, buf, 0o644)
}

func (w *outputWriter) flushEdgesNDJSON() error {
	var buf []byte
	for _, e := range w.edges {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	path := filepath.Join(w.outDir, fmt.Sprintf("internal-links.part%d.ndjson", w.partIndex))
	return atomicfile.WriteFileAtomic(path, buf, 0o644)
}

func csvEscape(s string) string {
	needsQuote := false
	for _, r := range s {
		if r == ',' || r == '"' || r == '\n' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	escaped := ""
	for _, r := range s {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}
