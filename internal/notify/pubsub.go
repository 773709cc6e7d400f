package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes to a Google Cloud Pub/Sub topic, grounded on
// the teacher's internal/publisher/pubsub.Publisher.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps an already-resolved topic handle.
func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// Publish marshals payload to JSON and publishes it, blocking for the
// broker's acknowledgment.
func (p *PubSubPublisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
