package events

import (
	"context"
	"sync"
)

// NoopPublisher drops cycle progress events when NATS is not configured.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// NoopSubscriber never delivers anything. The service uses it when the
// event transport could not be started, so the gate keeps running with only
// the local HTTP trigger path.
type NoopSubscriber struct{}

// Subscribe returns a channel that stays open and silent until cancel.
func (n *NoopSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }, nil
}

func (n *NoopSubscriber) Close() error {
	return nil
}
