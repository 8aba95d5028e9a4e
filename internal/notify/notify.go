// Package notify publishes sync lifecycle notifications on an in-process
// watermill channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Topics.
const (
	TopicSyncCompleted      = "sync.completed"
	TopicFirstSyncCompleted = "sync.first_completed"
)

// Notifier publishes JSON notifications.
type Notifier struct {
	pubsub *gochannel.GoChannel
}

// New creates a Notifier. Messages published with no subscriber are dropped.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger)),
	}
}

// Publish encodes v and publishes it on topic.
func (n *Notifier) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	if err := n.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message stream for topic. It ends when ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return n.pubsub.Subscribe(ctx, topic)
}

// Close shuts the channel down.
func (n *Notifier) Close() error {
	return n.pubsub.Close()
}
