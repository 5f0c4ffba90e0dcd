package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriptionBuffer is how many undelivered payloads a subscription holds
// before it starts dropping.
const subscriptionBuffer = 16

func dial(url, name string, defaults []nats.Option, extra []nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{nats.Name(name)}, defaults...)
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes events to NATS as JSON, one subject per topic.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := dial(url, "o3gate-publisher", nil, opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	return p.nc.Publish(topic, data)
}

// Flush waits until the server has seen everything published so far.
// One-shot publishers call it before Close.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}

// NATSSubscriber receives trigger payloads. It reconnects forever, so a
// gate picks the push server back up on its own after a network drop.
type NATSSubscriber struct {
	nc *nats.Conn
}

// NewNATSSubscriber connects to url. opts are applied after the reconnect
// defaults, typically disconnect and reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := dial(url, "o3gate-subscriber",
		[]nats.Option{nats.MaxReconnects(-1), nats.ReconnectWait(time.Second)}, opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{nc: nc}, nil
}

// Subscribe delivers payloads published on subject (wildcards allowed).
// When the consumer falls behind by more than the buffer, newer payloads
// are dropped. The returned cancel unsubscribes and closes the channel; it
// is safe to call more than once.
func (s *NATSSubscriber) Subscribe(subject string) (<-chan []byte, func(), error) {
	sub := &subscription{ch: make(chan []byte, subscriptionBuffer)}

	ns, err := s.nc.Subscribe(subject, sub.deliver)
	if err != nil {
		close(sub.ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = ns.Unsubscribe()
		close(sub.ch)
		return nil, nil, fmt.Errorf("confirming subscription to %s: %w", subject, err)
	}
	sub.ns = ns
	return sub.ch, sub.cancel, nil
}

// Connected reports whether the server connection is currently up.
func (s *NATSSubscriber) Connected() bool {
	return s.nc.IsConnected()
}

func (s *NATSSubscriber) Close() error {
	s.nc.Close()
	return nil
}

// subscription bridges a NATS callback to a channel. mu orders deliveries
// against the close in cancel.
type subscription struct {
	ns *nats.Subscription
	ch chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
	}
}

func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ns != nil {
		_ = s.ns.Unsubscribe()
	}
	close(s.ch)
}
