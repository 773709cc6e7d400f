// Package crawlweb holds the shared page/link types and the URL and text
// normalization rules used across the worker's discovery and fetch phases
// (spec.md Section 4.7). It is grounded on the teacher's crawler package
// (internal/crawler/types.go, url.go), generalized from a job-oriented
// fetch record to the orchestrator's per-URL page record.
package crawlweb

import (
	"net/http"
	"time"
)

// Page is the result of loading one URL, whether via headless render or a
// cheap HTTP probe.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Title       string
	Description string
	UsedJS      bool
	FetchedAt   time.Time
	Duration    time.Duration

	// SPANavIntents holds the raw URL/path arguments passed to
	// history.pushState/replaceState, location.assign/replace, and
	// window.open while the page was rendered, captured by
	// installSPANavHooks before the tab is torn down. Empty for pages
	// fetched over plain HTTP.
	SPANavIntents []string
}

// LinkKind classifies how a link candidate was discovered on a page, per
// spec.md Section 4.7 step 6.
type LinkKind string

// Supported link discovery kinds.
const (
	LinkKindAnchor   LinkKind = "anchor"
	LinkKindRole     LinkKind = "role"
	LinkKindDataAttr LinkKind = "data-attr"
	LinkKindOnclick  LinkKind = "onclick"
	LinkKindSPANav   LinkKind = "spa-nav"
)

// Edge is one internal-link record emitted per discovered candidate.
type Edge struct {
	PageURL string   `json:"pageUrl"`
	LinkURL string   `json:"linkUrl"`
	Text    string   `json:"text"`
	Kind    LinkKind `json:"kind"`
}

// ProbeResult is the outcome of a cheap HTTP HEAD existence check.
type ProbeResult struct {
	URL        string
	FinalURL   string
	StatusCode int
	Exists     bool
	Err        error
}
