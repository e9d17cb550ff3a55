package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

// sender delivers one message to topic and waits for the broker's ack.
type sender interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type publisherSource interface {
	Publisher(topic string) *gcppubsub.Publisher
}

// pubsubSender sends through the client's cached per-topic publishers.
type pubsubSender struct {
	source publisherSource
}

func (s pubsubSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.source.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}
