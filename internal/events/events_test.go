package events

import "testing"

func TestDispatchOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []int
	r.Subscribe("player.join", func(e *Event) { order = append(order, 1) })
	r.Subscribe("player.join", func(e *Event) { order = append(order, 2) })

	r.Dispatch("player.join", nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("handlers out of order: %v", order)
	}
}

func TestCancelReported(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("player.chat", func(e *Event) { e.Cancel() })
	ran := false
	r.Subscribe("player.chat", func(e *Event) { ran = true })

	if !r.Dispatch("player.chat", map[string]any{"message": "hi"}) {
		t.Fatal("cancellation should be reported")
	}
	if !ran {
		t.Fatal("cancel must not stop later handlers")
	}
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	id := r.Subscribe("room.create", func(e *Event) { calls++ })

	r.Dispatch("room.create", nil)
	r.Unsubscribe("room.create", id)
	r.Dispatch("room.create", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPanicContained(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("room.destroy", func(e *Event) { panic("boom") })
	ran := false
	r.Subscribe("room.destroy", func(e *Event) { ran = true })

	r.Dispatch("room.destroy", nil)
	if !ran {
		t.Fatal("panic in one handler must not stop the rest")
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	if r.Dispatch("nobody.listens", nil) {
		t.Fatal("event with no handlers cannot be canceled")
	}
}
