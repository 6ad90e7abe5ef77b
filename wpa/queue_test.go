package wpa

import (
	"testing"

	"github.com/Arceliar/phony"
)

type fakeWriter struct {
	sent []Message
	fail error
}

func (w *fakeWriter) Write(m Message) error {
	if w.fail != nil {
		return w.fail
	}
	w.sent = append(w.sent, m)
	return nil
}

func TestCommandQueueSingleInFlight(t *testing.T) {
	writer := &fakeWriter{}
	var events []Message
	q := NewCommandQueue(writer, func(m Message) { events = append(events, m) })

	var replies []Message
	q.Enqueue(NewRequest("ATTACH"), func(reply Message, err error) {
		replies = append(replies, reply)
	})
	q.Enqueue(NewRequest("SET").Append("wifi_display").AppendInt(1), func(reply Message, err error) {
		replies = append(replies, reply)
	})

	phony.Block(q, func() {
		if len(writer.sent) != 1 {
			t.Fatalf("expected only the first request on the wire while one is in flight, got %d", len(writer.sent))
		}
	})

	ok, _ := Parse([]byte("OK"))
	q.Dispatch(ok)

	phony.Block(q, func() {
		if len(writer.sent) != 2 {
			t.Fatalf("expected the second request to be sent after the first reply, got %d", len(writer.sent))
		}
		if len(replies) != 1 {
			t.Fatalf("expected exactly one reply delivered so far, got %d", len(replies))
		}
	})

	q.Dispatch(ok)
	phony.Block(q, func() {
		if len(replies) != 2 {
			t.Fatalf("expected both replies delivered, got %d", len(replies))
		}
	})
}

func TestCommandQueueEventsDoNotAdvanceQueue(t *testing.T) {
	writer := &fakeWriter{}
	var events []Message
	q := NewCommandQueue(writer, func(m Message) { events = append(events, m) })

	q.Enqueue(NewRequest("P2P_FIND").AppendInt(30), nil)

	deviceFound, _ := Parse([]byte("<3>P2P-DEVICE-FOUND aa:bb:cc:dd:ee:ff name='x'"))
	q.Dispatch(deviceFound)

	phony.Block(q, func() {
		if len(events) != 1 {
			t.Fatalf("expected the event to reach the event handler, got %d", len(events))
		}
		if !q.inFlight {
			t.Fatal("expected the original request to still be in flight after an event")
		}
	})
}
