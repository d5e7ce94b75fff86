package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultOutboxSize is the number of frames buffered per connection.
const DefaultOutboxSize = 256

// TextMessage is the websocket text frame opcode.
const TextMessage = 1

// MessageWriter writes one frame to a connection.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Outbox is a bounded per-connection send queue. Send never blocks, so it is
// safe to call while a room lock is held. Lossy frames are dropped when the
// queue is full; a reliable frame that does not fit closes the outbox.
type Outbox struct {
	id    string
	queue chan []byte
	done  chan struct{}

	closeOnce  sync.Once
	dropped    atomic.Uint64
	overflowed atomic.Bool
}

// NewOutbox creates an outbox for connection id.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		id:    id,
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

// Send enqueues msg for delivery.
func (o *Outbox) Send(msg []byte, lossy bool) {
	select {
	case <-o.done:
		return
	default:
	}

	select {
	case o.queue <- msg:
	default:
		if lossy {
			o.dropped.Add(1)
			return
		}
		o.overflowed.Store(true)
		o.Close()
	}
}

// Close stops delivery. Pending frames are discarded.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

// Done is closed when the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Dropped returns how many lossy frames were discarded.
func (o *Outbox) Dropped() uint64 {
	return o.dropped.Load()
}

// Overflowed reports whether a reliable frame could not be queued.
func (o *Outbox) Overflowed() bool {
	return o.overflowed.Load()
}

// Pump writes queued frames to w until ctx is cancelled, the outbox is closed
// or a write fails. It returns ErrSlowConsumer when the outbox was closed
// because of an overflow.
func (o *Outbox) Pump(ctx context.Context, w MessageWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			if o.overflowed.Load() {
				return ErrSlowConsumer
			}
			return nil
		case msg := <-o.queue:
			if err := w.WriteMessage(TextMessage, msg); err != nil {
				return err
			}
		}
	}
}
