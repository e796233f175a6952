package eventbus

import (
	"testing"
	"time"
)

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe(TopicSolverAttempt)

	bus.Publish(TopicSolverAttempt, "inference")

	select {
	case evt := <-ch:
		if evt.Topic != TopicSolverAttempt {
			t.Errorf("expected topic %q, got %q", TopicSolverAttempt, evt.Topic)
		}
		if evt.Payload != "inference" {
			t.Errorf("expected payload 'inference', got %v", evt.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout: expected event to be received within 100ms")
	}
}

func TestBus_MultipleSubscribers_AllReceive(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe(TopicSolverOutcome)
	ch2 := bus.Subscribe(TopicSolverOutcome)

	bus.Publish(TopicSolverOutcome, 42)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Payload != 42 {
				t.Errorf("subscriber %d: expected payload 42, got %v", i, evt.Payload)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBus_DifferentTopics_NoInterference(t *testing.T) {
	bus := New()
	attempts := bus.Subscribe(TopicSolverAttempt)
	outcomes := bus.Subscribe(TopicSolverOutcome)

	bus.Publish(TopicSolverAttempt, "a")

	select {
	case <-attempts:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("attempt topic: timeout waiting for event")
	}

	select {
	case evt := <-outcomes:
		t.Errorf("outcome topic received unexpected event: %v", evt)
	default:
	}
}

func TestBus_FullBuffer_DropsWithoutBlocking(t *testing.T) {
	bus := NewWithBuffer(4)
	_ = bus.Subscribe("overflow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish("overflow", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked when buffer was full")
	}
	if got := bus.Dropped(); got != 6 {
		t.Errorf("Dropped() = %d; want 6", got)
	}
}

func TestBus_Unsubscribe_ClosesChannel(t *testing.T) {
	bus := New()
	ch := bus.Subscribe(TopicSolverAttempt)

	bus.Unsubscribe(TopicSolverAttempt, ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after Unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(TopicSolverAttempt, "late")
}

func TestBus_NewWithBuffer_NonPositiveUsesDefault(t *testing.T) {
	bus := NewWithBuffer(0)
	if bus.bufferSize != defaultBufferSize {
		t.Errorf("bufferSize = %d; want %d", bus.bufferSize, defaultBufferSize)
	}
}
