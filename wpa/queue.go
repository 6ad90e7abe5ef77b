package wpa

import (
	"github.com/Arceliar/phony"
)

// ReplyHandler is invoked with the supplicant's reply to a single request.
// err is set only for transport-level failures (the request could not be
// written); a FAIL reply is reported via Message.IsFail, not as err.
// Requests still pending when their queue is discarded never get a call.
type ReplyHandler func(reply Message, err error)

// Writer sends a fully built request onto the wire. It is satisfied by
// *Conn; kept as an interface here so the queue can be tested without a
// real socket.
type Writer interface {
	Write(m Message) error
}

type pendingCommand struct {
	request Message
	handler ReplyHandler
}

// CommandQueue multiplexes a single outstanding request against a stream
// that also carries unsolicited events. Everything that touches the
// in-flight slot or the FIFO does so from the queue's own phony.Inbox
// goroutine, so no mutex is needed.
type CommandQueue struct {
	phony.Inbox

	writer   Writer
	pending  []pendingCommand
	inFlight bool

	onEvent func(Message)
}

// NewCommandQueue creates a queue that writes outgoing requests through
// writer and hands unsolicited events to onEvent.
func NewCommandQueue(writer Writer, onEvent func(Message)) *CommandQueue {
	return &CommandQueue{writer: writer, onEvent: onEvent}
}

// Enqueue appends request to the FIFO, writing it immediately if nothing
// is currently in flight.
func (q *CommandQueue) Enqueue(request Message, handler ReplyHandler) {
	q.Act(nil, func() {
		q.pending = append(q.pending, pendingCommand{request: request, handler: handler})
		if !q.inFlight {
			q.sendNext()
		}
	})
}

func (q *CommandQueue) sendNext() {
	if len(q.pending) == 0 {
		q.inFlight = false
		return
	}
	q.inFlight = true
	next := q.pending[0]
	if err := q.writer.Write(next.request); err != nil {
		q.pending = q.pending[1:]
		if next.handler != nil {
			next.handler(Message{}, err)
		}
		q.sendNext()
	}
}

// Dispatch feeds one parsed incoming message to the queue. Events are
// handed to onEvent without touching the FIFO; anything else is treated
// as the reply to the in-flight request.
func (q *CommandQueue) Dispatch(message Message) {
	q.Act(nil, func() {
		if message.Kind() == KindEvent {
			if q.onEvent != nil {
				q.onEvent(message)
			}
			return
		}
		if !q.inFlight || len(q.pending) == 0 {
			// A reply with nothing in flight is unexpected; the
			// supplicant never sends unsolicited replies, so this is
			// discarded rather than treated as an error.
			return
		}
		cmd := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight = false
		if cmd.handler != nil {
			cmd.handler(message, nil)
		}
		q.sendNext()
	})
}
