package notify

import "context"

// NoopPublisher discards every publish. Selected when no topic is
// configured so the orchestrator never special-cases "no notifier".
type NoopPublisher struct{}

// Publish returns immediately without sending anything.
func (NoopPublisher) Publish(context.Context, any) (string, error) { return "", nil }
