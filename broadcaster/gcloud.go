package broadcaster

import (
	"context"

	"gocloud.dev/pubsub"

	// in-memory driver for the in-process distribution channel
	_ "gocloud.dev/pubsub/mempubsub"
)

// openSubscriptionFunc is the seam the distributor opens its channel through; tests swap
// it for a scriptable fake
var openSubscriptionFunc = func(ctx context.Context, url string) (subscription, error) {
	sub, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		return nil, err
	}
	return &gocloudSubscription{sub: sub}, nil
}

type gocloudSubscription struct {
	sub *pubsub.Subscription
}

func (g *gocloudSubscription) Receive(ctx context.Context) ([]byte, func(), error) {
	message, err := g.sub.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	return message.Body, message.Ack, nil
}

func (g *gocloudSubscription) Shutdown(ctx context.Context) error {
	return g.sub.Shutdown(ctx)
}

// Publisher is the pipeline-facing send side of the distribution channel
type Publisher struct {
	topic *pubsub.Topic
}

// NewPublisher opens the distribution topic at the given URL
func NewPublisher(ctx context.Context, topicURL string) (*Publisher, error) {
	topic, err := pubsub.OpenTopic(ctx, topicURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{topic: topic}, nil
}

// Publish sends one broadcast message onto the distribution channel
func (p *Publisher) Publish(ctx context.Context, message *Message) error {
	body, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return p.topic.Send(ctx, &pubsub.Message{Body: body})
}

// Shutdown releases the topic
func (p *Publisher) Shutdown(ctx context.Context) error {
	return p.topic.Shutdown(ctx)
}
