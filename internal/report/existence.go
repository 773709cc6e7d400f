package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
)

// ExistenceRecord is one row of the existence report.
type ExistenceRecord struct {
	InputURL   string `json:"input_url"`
	Exists     bool   `json:"exists"`
	HTTPStatus int    `json:"http_status"`
	FinalURL   string `json:"final_url"`
}

// Existence writes CSV + JSON existence artifacts plus working/not-working
// URL text files, per spec.md Section 4.9.
func (w *Writer) Existence(records []ExistenceRecord) error {
	var csvBuf strings.Builder
	writer := csv.NewWriter(&csvBuf)
	_ = writer.Write([]string{"input_url", "exists", "http_status", "final_url"})
	var working, notWorking strings.Builder
	for _, r := range records {
		_ = writer.Write([]string{r.InputURL, fmt.Sprint(r.Exists), fmt.Sprint(r.HTTPStatus), r.FinalURL})
		if r.Exists {
			working.WriteString(r.InputURL + "\n")
		} else {
			notWorking.WriteString(r.InputURL + "\n")
		}
	}
	writer.Flush()

	if err := atomicfile.WriteFileAtomic(w.path("url-existence.csv"), []byte(csvBuf.String()), 0o644); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal existence: %w", err)
	}
	if err := atomicfile.WriteFileAtomic(w.path("url-existence.json"), data, 0o644); err != nil {
		return err
	}
	if err := atomicfile.WriteFileAtomic(w.path("working-urls.txt"), []byte(working.String()), 0o644); err != nil {
		return err
	}
	return atomicfile.WriteFileAtomic(w.path("not-working-urls.txt"), []byte(notWorking.String()), 0o644)
}
