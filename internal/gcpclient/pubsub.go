package gcpclient

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier implements repository.JobNotifier, publishing the job ID to
// a Pub/Sub topic so idle embedding workers wake immediately instead of
// waiting for their next poll interval. Postgres remains authoritative;
// a dropped or duplicated notification only affects latency.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

// NewPubSubNotifier creates a PubSubNotifier publishing to topicID in project.
func NewPubSubNotifier(ctx context.Context, project, topicID string) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewPubSubNotifier: %w", err)
	}
	return &PubSubNotifier{topic: client.Topic(topicID)}, nil
}

// Notify publishes jobID and waits for the publish to be acknowledged.
func (n *PubSubNotifier) Notify(ctx context.Context, jobID string) error {
	result := n.topic.Publish(ctx, &pubsub.Message{Data: []byte(jobID)})
	_, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("gcpclient.PubSubNotifier.Notify: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines.
func (n *PubSubNotifier) Close() {
	n.topic.Stop()
}
