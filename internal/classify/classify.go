// Package classify implements the Input Classifier (spec.md Section 4.5):
// it inspects an optional delimited-text file and decides the crawl's Run
// Mode plus the semantic role of each column.
//
// Delimited-text parsing has no third-party representative anywhere in
// the example pack (the corpus's parsers are HTML/DOM-oriented:
// goquery, colly's own selectors, chromedp's DOM protocol). Section 4.5's
// column splitting is fully described by delimiter auto-detection over
// plain lines, so this package uses the standard library's encoding/csv
// rather than introduce an unrelated dependency with no grounding in the
// pack.
package classify

import (
	"bytes"
	"encoding/csv"
	"regexp"
	"strings"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
)

// Role names a column's inferred semantic content.
type Role string

// Supported column roles.
const (
	RoleURL         Role = "url"
	RoleTitle       Role = "title"
	RoleDescription Role = "description"
)

// RunMode is the derived crawl mode (spec.md Section 4's glossary entry).
type RunMode string

// Supported run modes.
const (
	ModeNoInput     RunMode = "no-input"
	ModeExplicitURLs RunMode = "explicit-urls"
	ModeDiscovery   RunMode = "discovery"
	ModeSingleText  RunMode = "single-text"
)

var candidateDelimiters = []rune{',', '\t', ';'}

var urlShapeRe = regexp.MustCompile(`^(https?:)?//|^/[^/]`)

// Row is a single input record padded to the shape's column width. Lookup
// is positional only (Get); callers map roles to column indexes through
// Shape.InferredRoles, and there is no lookup by column name.
type Row []string

// Get returns column i, or "" if the row is short.
func (r Row) Get(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Shape is the Input Shape record derived once per run before
// classification (spec.md Section 4's glossary entry).
type Shape struct {
	Exists              bool
	ColumnCount         int
	FirstColumnURLShare float64
	FirstRowIsURL       bool
	InferredRoles       []Role
	Rows                []Row
	Delimiter           rune
}

// HasRole reports whether role appears anywhere in InferredRoles.
func (s Shape) HasRole(role Role) bool {
	for _, r := range s.InferredRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Mode derives the Run Mode from the shape, per spec.md Section 4.5's
// "Run mode derives from this" rule.
func (s Shape) Mode() RunMode {
	if !s.Exists || len(s.Rows) == 0 {
		return ModeNoInput
	}
	switch {
	case s.ColumnCount >= 3:
		return ModeExplicitURLs
	case s.ColumnCount == 1 && s.HasRole(RoleURL):
		return ModeExplicitURLs
	case s.ColumnCount == 2 && s.FirstColumnURLShare >= 0.6:
		return ModeExplicitURLs
	case s.ColumnCount == 1 && (s.HasRole(RoleTitle) || s.HasRole(RoleDescription)):
		// A single non-URL text column drives the site crawl as ordinary
		// discovery but also supplies comparison_csv's ground truth, which
		// distinguishes it from discovery with no usable input at all.
		return ModeSingleText
	default:
		return ModeDiscovery
	}
}

// Classify strips a BOM, auto-detects the delimiter, pads rows, and
// derives the Input Shape for raw file contents. A nil/empty data slice
// yields a non-existent shape.
func Classify(data []byte) (Shape, error) {
	if len(data) == 0 {
		return Shape{Exists: false}, nil
	}

	lines, err := readNonEmptyLines(data)
	if err != nil {
		return Shape{}, err
	}
	if len(lines) == 0 {
		return Shape{Exists: false}, nil
	}

	delim := detectDelimiter(lines)
	rows, maxWidth := parseRows(lines, delim)
	rows = padRows(rows, maxWidth)

	share := firstColumnURLShare(rows)
	roles := inferRoles(maxWidth, share, rows)

	shape := Shape{
		Exists:              true,
		ColumnCount:         maxWidth,
		FirstColumnURLShare: share,
		FirstRowIsURL:       len(rows) > 0 && urlShapeRe.MatchString(strings.TrimSpace(rows[0].Get(0))),
		InferredRoles:       roles,
		Rows:                rows,
		Delimiter:           delim,
	}
	return shape, nil
}

func readNonEmptyLines(data []byte) ([]string, error) {
	var lines []string
	_, err := atomicfile.CopyLines(bytes.NewReader(data), func(line string) error {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
		return nil
	})
	return lines, err
}

// detectDelimiter picks the delimiter yielding the highest variance of
// column counts across the first 50 non-empty lines, per spec.md Section
// 4.5: a spuriously-matching delimiter tends to give uniform (low
// variance) 1-column splits.
func detectDelimiter(lines []string) rune {
	sample := lines
	if len(sample) > 50 {
		sample = sample[:50]
	}

	best := candidateDelimiters[0]
	bestVariance := -1.0
	for _, d := range candidateDelimiters {
		counts := make([]float64, 0, len(sample))
		for _, line := range sample {
			counts = append(counts, float64(strings.Count(line, string(d))+1))
		}
		v := variance(counts)
		if v > bestVariance {
			bestVariance = v
			best = d
		}
	}
	return best
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return sq / float64(len(xs))
}

func parseRows(lines []string, delim rune) ([]Row, int) {
	joined := strings.Join(lines, "\n")
	reader := csv.NewReader(strings.NewReader(joined))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	maxWidth := 1
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, Row(record))
		if len(record) > maxWidth {
			maxWidth = len(record)
		}
	}
	return rows, maxWidth
}

func padRows(rows []Row, width int) []Row {
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}

func firstColumnURLShare(rows []Row) float64 {
	if len(rows) == 0 {
		return 0
	}
	matches := 0
	for _, r := range rows {
		if urlShapeRe.MatchString(strings.TrimSpace(r.Get(0))) {
			matches++
		}
	}
	return float64(matches) / float64(len(rows))
}

func avgLength(rows []Row, col int) float64 {
	if len(rows) == 0 {
		return 0
	}
	total := 0
	for _, r := range rows {
		total += len(r.Get(col))
	}
	return float64(total) / float64(len(rows))
}

// inferRoles implements the table in spec.md Section 4.5.
func inferRoles(columnCount int, firstColShare float64, rows []Row) []Role {
	switch {
	case columnCount >= 3:
		return []Role{RoleURL, RoleTitle, RoleDescription}
	case columnCount == 2:
		switch {
		case firstColShare >= 0.6 && secondColumnURLShare(rows) < 0.3:
			if avgLength(rows, 1) < 120 {
				return []Role{RoleURL, RoleTitle}
			}
			return []Role{RoleURL, RoleDescription}
		case firstColShare < 0.3 && secondColumnURLShare(rows) < 0.3:
			return []Role{RoleTitle, RoleDescription}
		default:
			return nil
		}
	case columnCount == 1:
		if firstColShare >= 0.6 {
			return []Role{RoleURL}
		}
		if avgLength(rows, 0) < 120 {
			return []Role{RoleTitle}
		}
		return []Role{RoleDescription}
	default:
		return nil
	}
}

func secondColumnURLShare(rows []Row) float64 {
	if len(rows) == 0 {
		return 0
	}
	matches := 0
	for _, r := range rows {
		if urlShapeRe.MatchString(strings.TrimSpace(r.Get(1))) {
			matches++
		}
	}
	return float64(matches) / float64(len(rows))
}

// RefineSingleColumnRole compares normalized page tokens against the
// values in a single non-URL column and flips its role if one side
// dominates by >= 2 hits out of 8 probes (spec.md Section 4.5's
// post-fetch refinement rule).
func RefineSingleColumnRole(current Role, titleHits, descriptionHits, probes int) Role {
	if probes < 8 {
		return current
	}
	if titleHits-descriptionHits >= 2 {
		return RoleTitle
	}
	if descriptionHits-titleHits >= 2 {
		return RoleDescription
	}
	return current
}
