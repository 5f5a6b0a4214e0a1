package events

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEmitterPreservesOrder(t *testing.T) {
	emitter := NewEmitter[int]()

	const n = 1000
	for i := 0; i < n; i++ {
		emitter.Emit(i)
	}
	emitter.Close()

	i := 0
	for got := range emitter.Events() {
		if got != i {
			t.Fatalf("event %d out of order: got %d", i, got)
		}
		i++
	}
	if i != n {
		t.Fatalf("expected %d events, got %d", n, i)
	}
}

func TestEmitterDoesNotBlockProducer(t *testing.T) {
	emitter := NewEmitter[int]()

	// Nobody is reading yet; emits must return promptly anyway.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			emitter.Emit(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on unconsumed emitter")
	}

	emitter.Close()
	count := 0
	for range emitter.Events() {
		count++
	}
	if count != 100 {
		t.Fatalf("expected all 100 backlogged events, got %d", count)
	}
}

func TestEmitterEmitAfterClose(t *testing.T) {
	emitter := NewEmitter[string]()
	emitter.Emit("kept")
	emitter.Close()
	emitter.Emit("dropped")

	var got []string
	for v := range emitter.Events() {
		got = append(got, v)
	}
	if len(got) != 1 || got[0] != "kept" {
		t.Fatalf("unexpected events after close: %v", got)
	}
}

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus(zap.NewNop())

	ch, cancel := bus.Subscribe("s1")
	defer cancel()
	other, cancelOther := bus.Subscribe("s2")
	defer cancelOther()

	bus.Publish(StatusUpdate{SessionID: "s1", Status: "transcribing", At: time.Now()})

	select {
	case update := <-ch:
		if update.Status != "transcribing" {
			t.Errorf("unexpected status %s", update.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("expected update on subscriber channel")
	}

	select {
	case update := <-other:
		t.Fatalf("s2 subscriber received s1 update: %+v", update)
	default:
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus(zap.NewNop())

	ch, cancel := bus.Subscribe("s1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(StatusUpdate{SessionID: "s1", Status: "completed"})

	// Double cancel is safe.
	cancel()
}
