// Package stream provides an explicit, closeable stream value in place of
// the source's coroutine-based generators (spec.md §9: "Coroutine-based
// streaming with implicit cancellation"). A Stream is backed by a channel
// plus a cancellation function; consumers that abandon a stream must call
// Close so the producer can release HTTP/WS resources promptly.
package stream

import "context"

// Stream delivers a sequence of values of type T, terminated by either a
// final nil-error read or an error surfaced through Err after the channel
// closes.
type Stream[T any] struct {
	ch     <-chan T
	cancel context.CancelFunc
	errp   *error
}

// New wraps a channel and cancel function into a Stream. errp is a pointer
// the producer writes to (at most once) before closing ch; it is nil until
// then.
func New[T any](ch <-chan T, cancel context.CancelFunc, errp *error) *Stream[T] {
	return &Stream[T]{ch: ch, cancel: cancel, errp: errp}
}

// Recv blocks for the next value. ok is false once the stream is
// exhausted; callers should then check Err.
func (s *Stream[T]) Recv() (T, bool) {
	v, ok := <-s.ch
	return v, ok
}

// Chan exposes the underlying channel for range/select use.
func (s *Stream[T]) Chan() <-chan T {
	return s.ch
}

// Err returns the terminal error, if any, once the stream has closed.
func (s *Stream[T]) Err() error {
	if s.errp == nil {
		return nil
	}
	return *s.errp
}

// Close releases producer-side resources (HTTP connection, subprocess,
// WebSocket) for a stream the consumer is abandoning before exhaustion.
// Safe to call after the stream has already drained.
func (s *Stream[T]) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewProducer creates a Stream together with the channel a producer
// goroutine sends values on, a context derived from ctx that is cancelled
// when the consumer calls Close, and an error slot the producer may set
// (at most once, before closing ch) to surface a terminal error. The
// producer owns ch and must close it exactly once.
func NewProducer[T any](ctx context.Context) (s *Stream[T], ch chan T, pctx context.Context, errp *error) {
	pctx, cancel := context.WithCancel(ctx)
	ch = make(chan T)
	errp = new(error)
	s = New[T]((<-chan T)(ch), cancel, errp)
	return s, ch, pctx, errp
}

// Send delivers v on ch unless pctx has been cancelled, returning false in
// that case so the producer can stop generating.
func Send[T any](pctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-pctx.Done():
		return false
	}
}
