// Package telemetry implements the Telemetry Hub (spec.md Section 4.4): a
// process-local aggregator that workers report progress to over a local
// RPC, and which persists an atomic JSON snapshot at a fixed cadence so
// external readers can observe state without a live connection.
//
// Per the "dynamic dispatch over heterogeneous bucket messages -> tagged
// variants" design note, TelemetryEvent carries a discriminator field with
// one handler per variant rather than a type switch over an empty
// interface.
package telemetry

import "time"

// Kind discriminates the variants of TelemetryEvent.
type Kind string

// Supported event kinds, matching spec.md Section 4.4's
// "{thread, bucket, tree, bump, step, mode, event}" message set.
const (
	KindThread Kind = "thread"
	KindBucket Kind = "bucket"
	KindTree   Kind = "tree"
	KindBump   Kind = "bump"
	KindStep   Kind = "step"
	KindMode   Kind = "mode"
	KindEvent  Kind = "event"
)

// TelemetryEvent is the single wire message shape workers POST to the hub's
// /update endpoint. Only the fields relevant to Kind are populated.
type TelemetryEvent struct {
	Kind Kind      `json:"type"`
	TS   time.Time `json:"ts"`

	// KindThread: a worker's current phase.
	ThreadID string `json:"threadId,omitempty"`
	Phase    string `json:"phase,omitempty"`
	URL      string `json:"url,omitempty"`
	Bucket   int    `json:"bucket,omitempty"`
	Idle     int    `json:"idle,omitempty"`

	// KindBucket: a bucket ownership/progress update.
	BucketOwner     string `json:"bucketOwner,omitempty"`
	BucketProcessed int64  `json:"bucketProcessed,omitempty"`
	BucketPending   int64  `json:"bucketPending,omitempty"`
	BucketLastURL   string `json:"bucketLastUrl,omitempty"`

	// KindTree: a discovered path segment at a given depth.
	PathSegments []string `json:"pathSegments,omitempty"`

	// KindBump: increments a named counter (e.g. urlsFound, internalEdges).
	Counter string `json:"counter,omitempty"`
	Delta   int64  `json:"delta,omitempty"`

	// KindStep: advances or sets the run's step sequence.
	Step string `json:"step,omitempty"`

	// KindMode: announces the resolved run mode string.
	Mode string `json:"mode,omitempty"`

	// KindEvent: a free-form note appended to the bounded ring buffer.
	Note string `json:"note,omitempty"`
}
