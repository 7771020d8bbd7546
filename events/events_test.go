package events

import (
	"context"
	"testing"
	"time"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	f := NewFanout()
	a := f.Subscribe()
	b := f.Subscribe()
	defer f.Unsubscribe(a)
	defer f.Unsubscribe(b)

	f.Publish(Event{Kind: BufferCreated})

	ctx := context.Background()
	for _, s := range []*Stream{a, b} {
		e, ok := s.Next(ctx)
		if !ok {
			t.Fatal("expected an event")
		}
		if e.Kind != BufferCreated {
			t.Errorf("got kind %v, want BufferCreated", e.Kind)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := NewFanout()
	s := f.Subscribe()
	f.Unsubscribe(s)
	f.Publish(Event{Kind: BufferDeleted})

	ctx := context.Background()
	if _, ok := s.Next(ctx); ok {
		t.Error("expected closed stream to report no more events")
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	s := NewStream()
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, ok := s.Next(ctx); ok {
		t.Error("expected Next to time out with ok=false")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewStream()
	s.Close()
	s.Close() // must not panic
}

func TestPublishAfterCloseDoesNotBlock(t *testing.T) {
	s := NewStream()
	s.Close()

	done := make(chan struct{})
	go func() {
		s.publish(Event{Kind: BufferEdited})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after stream was closed")
	}
}
