// Package transport provides the carriers used by message routers: an
// in-process pair for contexts on the same device, a websocket client for the
// realtime channel, and a WebRTC data channel adapter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.aimuz.me/voicechat/message"
)

var (
	// ErrClosed is returned when publishing on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrQueueFull is returned when the receiving end is not keeping up.
	ErrQueueFull = errors.New("transport queue full")
)

// defaultBuffer is the inbound queue length of each transport.
const defaultBuffer = 64

// Local is one end of an in-process transport pair.
type Local struct {
	mu     sync.Mutex
	closed bool
	out    chan message.Envelope
	in     chan message.Envelope
}

// NewLocalPair returns two connected ends. What one end publishes the other
// receives, in publish order.
func NewLocalPair(buffer int) (*Local, *Local) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ab := make(chan message.Envelope, buffer)
	ba := make(chan message.Envelope, buffer)
	return &Local{out: ab, in: ba}, &Local{out: ba, in: ab}
}

// Publish queues env for the other end. It never blocks: env is dropped with
// ErrQueueFull when the other end's queue is full.
func (l *Local) Publish(ctx context.Context, env message.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.out <- env:
		return nil
	default:
		return fmt.Errorf("%s: %w", env.Event, ErrQueueFull)
	}
}

// Receive returns envelopes published by the other end.
func (l *Local) Receive() <-chan message.Envelope {
	return l.in
}

// Close stops publishing. The other end's Receive channel is closed.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.out)
	return nil
}
