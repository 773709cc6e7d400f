package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/report"
)

// MergeResult is the reduced union of every worker's partial output.
type MergeResult struct {
	FinalURLs      []string
	ExistenceByURL map[string]existenceMergeRecord
}

type existenceMergeRecord struct {
	Exists     bool   `json:"exists"`
	HTTPStatus int    `json:"httpStatus"`
	FinalURL   string `json:"finalUrl"`
}

// Merge concatenates each worker's urls-final and url-existence partitions
// into the run's master artifacts: URL lists reduce to a set; existence
// JSON merges into a map keyed by input URL, last writer wins, and
// url-existence.csv is written from that map (one row per input URL). The
// per-worker url-existence.part*.csv files are not read.
func (o *Orchestrator) Merge() (MergeResult, error) {
	result := MergeResult{ExistenceByURL: make(map[string]existenceMergeRecord)}

	urlSet := make(map[string]struct{})
	parts, err := filepath.Glob(filepath.Join(o.cfg.OutDir, "urls-final.part*.json"))
	if err != nil {
		return result, fmt.Errorf("glob urls-final parts: %w", err)
	}
	for _, part := range parts {
		var urls []string
		if err := readJSONFile(part, &urls); err != nil {
			o.logger.Warn("skip unreadable urls-final part", zap.String("path", part))
			continue
		}
		for _, u := range urls {
			urlSet[u] = struct{}{}
		}
	}
	result.FinalURLs = make([]string, 0, len(urlSet))
	for u := range urlSet {
		result.FinalURLs = append(result.FinalURLs, u)
	}
	sort.Strings(result.FinalURLs)

	if err := o.writeFinalURLs(result.FinalURLs); err != nil {
		return result, err
	}

	existParts, err := filepath.Glob(filepath.Join(o.cfg.OutDir, "url-existence.part*.json"))
	if err != nil {
		return result, fmt.Errorf("glob url-existence parts: %w", err)
	}
	sort.Strings(existParts)
	type rawExistence struct {
		InputURL   string `json:"inputUrl"`
		Exists     bool   `json:"exists"`
		HTTPStatus int    `json:"httpStatus"`
		FinalURL   string `json:"finalUrl"`
	}
	for _, part := range existParts {
		var records []rawExistence
		if err := readJSONFile(part, &records); err != nil {
			continue
		}
		for _, r := range records {
			result.ExistenceByURL[r.InputURL] = existenceMergeRecord{Exists: r.Exists, HTTPStatus: r.HTTPStatus, FinalURL: r.FinalURL}
		}
	}
	if len(result.ExistenceByURL) > 0 {
		if err := o.writeMergedExistence(result.ExistenceByURL); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *Orchestrator) writeFinalURLs(urls []string) error {
	if err := atomicfile.WriteFileAtomic(filepath.Join(o.cfg.OutDir, "urls-final.txt"), []byte(strings.Join(urls, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write urls-final.txt: %w", err)
	}
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal urls-final: %w", err)
	}
	return atomicfile.WriteFileAtomic(filepath.Join(o.cfg.OutDir, "urls-final.json"), data, 0o644)
}

// writeMergedExistence hands the deduplicated, last-writer-wins existence
// map to the report package's Existence writer, which owns the
// CSV/JSON/working-urls.txt artifact shapes shared with a run's other
// reports.
func (o *Orchestrator) writeMergedExistence(byURL map[string]existenceMergeRecord) error {
	urls := make([]string, 0, len(byURL))
	for u := range byURL {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	records := make([]report.ExistenceRecord, 0, len(urls))
	for _, u := range urls {
		r := byURL[u]
		records = append(records, report.ExistenceRecord{InputURL: u, Exists: r.Exists, HTTPStatus: r.HTTPStatus, FinalURL: r.FinalURL})
	}
	return report.New(o.cfg.OutDir).Existence(records)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
