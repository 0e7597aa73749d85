package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.aimuz.me/voicechat/metrics"
)

// Transport carries envelopes between contexts. Delivery is best effort:
// no acknowledgment, no retry, ordered only per sender.
type Transport interface {
	Publish(ctx context.Context, env Envelope) error
	// Receive returns the inbound envelopes. The channel is closed when the
	// transport shuts down.
	Receive() <-chan Envelope
}

// Drop reasons.
const (
	dropUnknown   = "unknown_event"
	dropMalformed = "malformed_payload"
	dropUnrouted  = "unrouted"
)

// Options configures a Router.
type Options struct {
	// Name labels the owning context in logs.
	Name    string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Router sends typed messages over a transport and dispatches inbound ones to
// the context's handler. A context has exactly one active handler; SetHandler
// replaces it.
type Router[H any] struct {
	transport Transport
	dispatch  func(H, Message) bool
	sender    string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	handler H
}

// NewRouter creates a router that dispatches with fn.
func NewRouter[H any](t Transport, fn func(H, Message) bool, h H, opts Options) *Router[H] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router[H]{
		transport: t,
		dispatch:  fn,
		handler:   h,
		sender:    uuid.NewString(),
		logger:    logger.With("context", opts.Name),
		metrics:   opts.Metrics,
	}
}

// NewLocalRouter creates a router for the local channel.
func NewLocalRouter(t Transport, h LocalHandler, opts Options) *Router[LocalHandler] {
	return NewRouter(t, DispatchLocal, h, opts)
}

// NewPeerRouter creates a router for the realtime peer channel.
func NewPeerRouter(t Transport, h PeerHandler, opts Options) *Router[PeerHandler] {
	return NewRouter(t, DispatchPeer, h, opts)
}

// SetHandler replaces the active handler.
func (r *Router[H]) SetHandler(h H) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Sender returns the identifier stamped on outbound envelopes.
func (r *Router[H]) Sender() string {
	return r.sender
}

// Send publishes m.
func (r *Router[H]) Send(ctx context.Context, m Message) error {
	env, err := Encode(m)
	if err != nil {
		return err
	}
	env.Sender = r.sender
	if err := r.transport.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", m.Event(), err)
	}
	return nil
}

// Post publishes m and logs failures instead of returning them.
func (r *Router[H]) Post(ctx context.Context, m Message) {
	if err := r.Send(ctx, m); err != nil {
		r.logger.Error("send message", "event", m.Event(), "error", err)
	}
}

// Run dispatches inbound envelopes until ctx is done or the transport closes.
// Handlers run on the Run goroutine, one at a time, in arrival order.
func (r *Router[H]) Run(ctx context.Context) error {
	in := r.transport.Receive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			r.Deliver(env)
		}
	}
}

// Deliver decodes and dispatches one envelope. Unknown events, malformed
// payloads and events with no handler are dropped.
func (r *Router[H]) Deliver(env Envelope) {
	if env.Sender != "" && env.Sender == r.sender {
		return
	}

	m, err := Decode(env)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, ErrUnknownEvent) {
			reason = dropUnknown
		}
		r.logger.Debug("drop message", "event", env.Event, "reason", reason, "error", err)
		r.metrics.Dropped(reason)
		return
	}

	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()

	if any(h) == nil || !r.dispatch(h, m) {
		r.logger.Debug("drop message", "event", env.Event, "reason", dropUnrouted)
		r.metrics.Dropped(dropUnrouted)
	}
}
