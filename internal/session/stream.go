package session

import (
	"errors"
	"sync"

	"ghostbot/internal/types"
)

// ErrStreamClosed is returned to the producer once the consumer has closed
// the stream.
var ErrStreamClosed = errors.New("response stream closed by consumer")

// Stream is the lazily produced event sequence of one response flow.
//
// Events are delivered in production order on an unbuffered channel, so the
// producer never runs more than one event ahead of the consumer. The channel
// is closed when the flow ends. Close stops the producer at its next event;
// calls already in flight are allowed to finish and their output is dropped.
type Stream struct {
	events chan types.StreamEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newStream() *Stream {
	return &Stream{
		events: make(chan types.StreamEvent),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Events returns the event channel.
func (s *Stream) Events() <-chan types.StreamEvent {
	return s.events
}

// Close abandons the stream. It is safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Done is closed after the producer has returned.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// emit blocks until the consumer takes ev or closes the stream.
func (s *Stream) emit(ev types.StreamEvent) error {
	select {
	case <-s.stop:
		return ErrStreamClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.stop:
		return ErrStreamClosed
	}
}

// Drain consumes every remaining event. Useful for callers that only need the
// terminal event.
func Drain(s *Stream) []types.StreamEvent {
	var out []types.StreamEvent
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}
