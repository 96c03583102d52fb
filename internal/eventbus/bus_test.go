package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()

	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: TopicScheduleCreated, Data: "task-1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TopicScheduleCreated || e.Data != "task-1" {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d got zero timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Second publish must not block even though nobody is draining.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TopicScheduleExecuted})
		b.Publish(Event{Type: TopicScheduleExecuted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("buffered events = %d, want 1", len(ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Must not panic on the closed channel.
	b.Publish(Event{Type: TopicScheduleCancelled})

	if _, ok := <-ch; ok {
		t.Fatal("received event after unsubscribe")
	}
}

func TestLogAdapter(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	LogAdapter{Bus: b}.PublishLogLine("warn", "disk almost full")

	select {
	case e := <-ch:
		line, ok := e.Data.(LogLine)
		if !ok {
			t.Fatalf("payload type = %T", e.Data)
		}
		if e.Type != TopicLogLine || line.Level != "warn" || line.Line != "disk almost full" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("log line not delivered")
	}

	// Nil bus is a no-op.
	LogAdapter{}.PublishLogLine("info", "ignored")
}
