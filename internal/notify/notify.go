// Package notify implements the Completion Notifier half of C12: a
// best-effort publish of the run's RunSummary to a configured message
// topic, grounded on the teacher's internal/publisher/pubsub.Publisher.
package notify

import (
	"context"
)

// Publisher publishes one payload, returning a broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// RunSummary is the completion payload cmd/run.go publishes after every
// run, whatever its outcome. cmd/run.go sets RunID, Base, Mode and
// Outcome; PagesFetched and Errors are left zero.
type RunSummary struct {
	RunID        string `json:"runId"`
	Base         string `json:"base"`
	Mode         string `json:"mode"`
	PagesFetched int64  `json:"pagesFetched"`
	Errors       int64  `json:"errors"`
	Outcome      string `json:"outcome"`
}
