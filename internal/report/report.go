// Package report implements the Report Writers (C9): the artifacts
// produced from a run's merged page records and input shape, per spec.md
// Section 4.9.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

// PageRecord is one merged page entry read back from the fetch-cache
// partitions, the input to every report writer in this package.
type PageRecord struct {
	URL         string `json:"url"`
	FinalURL    string `json:"finalUrl"`
	StatusCode  int    `json:"statusCode"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UsedJS      bool   `json:"usedJs"`
}

// Writer produces report artifacts under a fixed output directory.
type Writer struct {
	outDir string
}

// New constructs a Writer rooted at outDir.
func New(outDir string) *Writer {
	return &Writer{outDir: outDir}
}

func (w *Writer) path(name string) string { return filepath.Join(w.outDir, name) }

// SiteCatalog writes one row per page record.
func (w *Writer) SiteCatalog(pages []PageRecord) error {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"url", "final_url", "status_code", "title", "description", "used_js"})
	for _, p := range pages {
		_ = writer.Write([]string{p.URL, p.FinalURL, fmt.Sprint(p.StatusCode), p.Title, p.Description, fmt.Sprint(p.UsedJS)})
	}
	writer.Flush()
	return atomicfile.WriteFileAtomic(w.path("site_catalog.csv"), []byte(buf.String()), 0o644)
}

// DuplicateTitles writes titles seen on >= 2 distinct URLs.
func (w *Writer) DuplicateTitles(pages []PageRecord) error {
	byTitle := make(map[string][]string)
	for _, p := range pages {
		if p.Title == "" {
			continue
		}
		byTitle[p.Title] = append(byTitle[p.Title], p.FinalURL)
	}
	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"title", "url_count", "urls"})
	titles := make([]string, 0, len(byTitle))
	for t, urls := range byTitle {
		if len(urls) >= 2 {
			titles = append(titles, t)
		}
	}
	sort.Strings(titles)
	for _, t := range titles {
		urls := byTitle[t]
		_ = writer.Write([]string{t, fmt.Sprint(len(urls)), strings.Join(urls, "; ")})
	}
	writer.Flush()
	return atomicfile.WriteFileAtomic(w.path("duplicate-titles.csv"), []byte(buf.String()), 0o644)
}

// InternalLinks flattens per-worker NDJSON edge files into one CSV.
func (w *Writer) InternalLinks(edges []crawlweb.Edge) error {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"page_url", "link_url", "text", "kind"})
	for _, e := range edges {
		_ = writer.Write([]string{e.PageURL, e.LinkURL, e.Text, string(e.Kind)})
	}
	writer.Flush()
	return atomicfile.WriteFileAtomic(w.path("internal-links.csv"), []byte(buf.String()), 0o644)
}

// LoadEdges reads and concatenates every per-worker internal-links NDJSON
// partition, per spec.md Section 4.8's "Internal-links NDJSON files remain
// per-worker (no dedup)".
func LoadEdges(outDir string) ([]crawlweb.Edge, error) {
	parts, err := filepath.Glob(filepath.Join(outDir, "internal-links.part*.ndjson"))
	if err != nil {
		return nil, fmt.Errorf("glob internal-links parts: %w", err)
	}
	var edges []crawlweb.Edge
	for _, part := range parts {
		data, err := atomicfile.ReadRetry(part)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var e crawlweb.Edge
			if err := json.Unmarshal([]byte(line), &e); err == nil {
				edges = append(edges, e)
			}
		}
	}
	return edges, nil
}

// LoadPages reads and concatenates every per-worker fetch-cache partition.
func LoadPages(outDir string) ([]PageRecord, error) {
	parts, err := filepath.Glob(filepath.Join(outDir, "fetch-cache.part*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob fetch-cache parts: %w", err)
	}
	var pages []PageRecord
	for _, part := range parts {
		data, err := atomicfile.ReadRetry(part)
		if err != nil {
			continue
		}
		var partial []PageRecord
		if err := json.Unmarshal(data, &partial); err == nil {
			pages = append(pages, partial...)
		}
	}
	return pages, nil
}
