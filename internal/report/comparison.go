package report

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

// Expected is one row of comparison ground truth from the input file.
type Expected struct {
	ExpectedURL string
	Title       string
	Description string
}

// MatchStatus classifies one comparison row.
type MatchStatus string

// Supported match statuses.
const (
	MatchCorrect          MatchStatus = "correct"
	MatchDescMismatchOnly MatchStatus = "desc-mismatch-only"
	MatchOtherMismatch    MatchStatus = "other-mismatch"
	MatchNotFound         MatchStatus = "not-found"
	MatchAmbiguous        MatchStatus = "ambiguous"
)

const (
	titleLengthLimit       = 60
	descriptionLengthLimit = 160
	prefixTokenDefault     = 4
	fuzzyThresholdDefault  = 0.6
)

// ComparisonRow is one output row of the comparison report.
type ComparisonRow struct {
	Expected       Expected
	Status         MatchStatus
	MatchedURL     string
	MatchedTitle   string
	TitleTooLong   bool
	DescTooLong    bool
}

// Comparison performs the row-per-expected comparison described in
// spec.md Section 4.9: a direct expectedUrl lookup when given, else
// three-tier title matching (exact, prefix-K, fuzzy Jaccard >= T).
func Comparison(expected []Expected, pages []PageRecord, prefixTokens int, fuzzyThreshold float64) []ComparisonRow {
	if prefixTokens <= 0 {
		prefixTokens = prefixTokenDefault
	}
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = fuzzyThresholdDefault
	}

	byURL := make(map[string]PageRecord, len(pages))
	for _, p := range pages {
		byURL[p.FinalURL] = p
	}

	rows := make([]ComparisonRow, 0, len(expected))
	for _, e := range expected {
		var row ComparisonRow
		if e.ExpectedURL != "" {
			row = matchByURL(e, byURL)
		} else {
			row = matchByTitle(e, pages, prefixTokens, fuzzyThreshold)
		}
		row.TitleTooLong = len(row.Expected.Title) > titleLengthLimit
		row.DescTooLong = len(row.Expected.Description) > descriptionLengthLimit
		rows = append(rows, row)
	}
	return rows
}

func matchByURL(e Expected, byURL map[string]PageRecord) ComparisonRow {
	page, ok := byURL[e.ExpectedURL]
	if !ok {
		return ComparisonRow{Expected: e, Status: MatchNotFound}
	}
	titleMatch := crawlweb.NormalizeText(page.Title) == crawlweb.NormalizeText(e.Title)
	descMatch := e.Description == "" || crawlweb.NormalizeText(page.Description) == crawlweb.NormalizeText(e.Description)
	switch {
	case titleMatch && descMatch:
		return ComparisonRow{Expected: e, Status: MatchCorrect, MatchedURL: page.FinalURL, MatchedTitle: page.Title}
	case titleMatch && !descMatch:
		return ComparisonRow{Expected: e, Status: MatchDescMismatchOnly, MatchedURL: page.FinalURL, MatchedTitle: page.Title}
	default:
		return ComparisonRow{Expected: e, Status: MatchOtherMismatch, MatchedURL: page.FinalURL, MatchedTitle: page.Title}
	}
}

func matchByTitle(e Expected, pages []PageRecord, prefixTokens int, fuzzyThreshold float64) ComparisonRow {
	expectedNorm := crawlweb.NormalizeText(e.Title)
	expectedTokens := crawlweb.Tokens(e.Title)

	var exact, prefixMatches, fuzzyMatches []PageRecord
	for _, p := range pages {
		pageNorm := crawlweb.NormalizeText(p.Title)
		if pageNorm == expectedNorm && pageNorm != "" {
			exact = append(exact, p)
			continue
		}
		if samePrefix(expectedTokens, crawlweb.Tokens(p.Title), prefixTokens) {
			prefixMatches = append(prefixMatches, p)
			continue
		}
		if jaccard(expectedTokens, crawlweb.Tokens(p.Title)) >= fuzzyThreshold {
			fuzzyMatches = append(fuzzyMatches, p)
		}
	}

	for _, tier := range [][]PageRecord{exact, prefixMatches, fuzzyMatches} {
		switch len(tier) {
		case 0:
			continue
		case 1:
			return ComparisonRow{Expected: e, Status: MatchCorrect, MatchedURL: tier[0].FinalURL, MatchedTitle: tier[0].Title}
		default:
			return ComparisonRow{Expected: e, Status: MatchAmbiguous}
		}
	}
	return ComparisonRow{Expected: e, Status: MatchNotFound}
}

func samePrefix(a, b []string, k int) bool {
	if len(a) < k || len(b) < k {
		return false
	}
	for i := 0; i < k; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// WriteComparison persists the comparison rows as CSV.
func (w *Writer) WriteComparison(rows []ComparisonRow) error {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"expected_url", "expected_title", "status", "matched_url", "matched_title", "title_too_long", "desc_too_long"})
	for _, r := range rows {
		_ = writer.Write([]string{
			r.Expected.ExpectedURL, r.Expected.Title, string(r.Status),
			r.MatchedURL, r.MatchedTitle,
			fmt.Sprint(r.TitleTooLong), fmt.Sprint(r.DescTooLong),
		})
	}
	writer.Flush()
	return atomicfile.WriteFileAtomic(w.path("comparison.csv"), []byte(buf.String()), 0o644)
}
