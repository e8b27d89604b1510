package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	events, unsubscribe := b.Subscribe(4)
	defer unsubscribe()

	b.Publish(Event{Type: TypeRunStarted, Data: RunEvent{Seq: 7, Label: "x"}})

	select {
	case e := <-events:
		if e.Type != TypeRunStarted {
			t.Fatalf("type = %q, want %q", e.Type, TypeRunStarted)
		}
		if e.Time.IsZero() {
			t.Fatal("publish did not stamp a time")
		}
		ev, ok := e.Data.(RunEvent)
		if !ok || ev.Seq != 7 {
			t.Fatalf("data = %#v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	events, unsubscribe := b.Subscribe(1)

	unsubscribe()
	unsubscribe() // idempotent

	if _, ok := <-events; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Must not panic or block with no live subscribers.
	b.Publish(Event{Type: TypeRunFinished})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	b := New().(*memBus)
	events, unsubscribe := b.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			b.Publish(Event{Type: TypeRunDropped})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if got := len(events); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
}
