package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// New resolves a Publisher from project/topic configuration: a real
// PubSubPublisher when both are set, else a NoopPublisher. The caller owns
// closing the underlying client (accessible only indirectly through the
// returned Publisher's lifetime, matching the teacher's pattern of handing
// off a pre-built client rather than this package owning one).
func New(ctx context.Context, project, topicID string) (Publisher, func(), error) {
	if project == "" || topicID == "" {
		return NoopPublisher{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	closer := func() {
		topic.Stop()
		_ = client.Close()
	}
	return NewPubSubPublisher(topic), closer, nil
}
