package events

import (
	"context"
	"errors"
	"testing"
)

type countingPublisher struct {
	published []string
	closed    bool
	err       error
}

func (p *countingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.published = append(p.published, topic)
	return p.err
}

func (p *countingPublisher) Close() error {
	p.closed = true
	return p.err
}

func TestFanout_PublishesToAll(t *testing.T) {
	boom := errors.New("bus down")
	a := &countingPublisher{err: boom}
	b := &countingPublisher{}

	var pub Publisher = Fanout{a, b}
	err := pub.Publish(context.Background(), TopicCycleStarted, CycleStarted{CycleID: "cy-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap %v, got %v", boom, err)
	}
	if len(a.published) != 1 || len(b.published) != 1 {
		t.Fatalf("published a=%v b=%v, want one each", a.published, b.published)
	}

	if err := pub.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected every publisher closed")
	}
}

func TestFanout_Empty(t *testing.T) {
	var f Fanout
	if err := f.Publish(context.Background(), TopicCyclePhase, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
