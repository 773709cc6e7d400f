package report

import (
	"encoding/csv"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

// Extras writes pages found on the site that are not present in the
// input, matched by title-only or by (title, description) pair depending
// on matchDescription, per spec.md Section 4.9.
func (w *Writer) Extras(pages []PageRecord, expected []Expected, matchDescription bool) error {
	known := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		key := crawlweb.NormalizeText(e.Title)
		if matchDescription {
			key += "\x00" + crawlweb.NormalizeText(e.Description)
		}
		known[key] = struct{}{}
	}

	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"url", "title", "description"})
	for _, p := range pages {
		key := crawlweb.NormalizeText(p.Title)
		if matchDescription {
			key += "\x00" + crawlweb.NormalizeText(p.Description)
		}
		if _, ok := known[key]; ok {
			continue
		}
		_ = writer.Write([]string{p.FinalURL, p.Title, p.Description})
	}
	writer.Flush()
	return atomicfile.WriteFileAtomic(w.path("extras.csv"), []byte(buf.String()), 0o644)
}
