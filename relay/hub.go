package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
	"nhooyr.io/websocket"
)

const (
	defaultSubscriberBuffer = 32
	defaultReadLimit        = 1 << 20
	writeTimeout            = 5 * time.Second

	dropSlowSubscriber = "slow_subscriber"
)

// HubConfig holds configuration for a Hub.
type HubConfig struct {
	// OriginPatterns lists the browser origins allowed to subscribe. Empty
	// allows any origin.
	OriginPatterns []string
	// Buffer is the per-subscriber outbound queue length.
	Buffer    int
	ReadLimit int64
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Hub is the realtime channel server. Every text frame a subscriber sends is
// delivered to the other subscribers of the same channel. Delivery is
// best-effort: a subscriber whose queue is full is disconnected.
type Hub struct {
	cfg     HubConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
}

type subscriber struct {
	send   chan []byte
	cancel context.CancelFunc
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultSubscriberBuffer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger.With("component", "hub"),
		metrics:  cfg.Metrics,
		channels: make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Publisher returns a publisher that injects envelopes into channel.
func (h *Hub) Publisher(channel string) Publisher {
	return hubPublisher{hub: h, channel: channel}
}

// ServeHTTP upgrades GET /realtime/{channel} to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if r.Method != http.MethodGet || channel == "" {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.OriginPatterns,
		InsecureSkipVerify: len(h.cfg.OriginPatterns) == 0,
	})
	if err != nil {
		h.logger.Debug("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := &subscriber{send: make(chan []byte, h.cfg.Buffer), cancel: cancel}
	h.join(channel, sub)
	defer h.leave(channel, sub)

	go h.writeLoop(ctx, conn, sub)
	h.readLoop(ctx, conn, channel, sub)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, channel string, sub *subscriber) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("subscriber read ended", "channel", channel, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.fanout(channel, sub, data)
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sub.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				sub.cancel()
				return
			}
		}
	}
}

// fanout queues data for every subscriber on channel except from.
func (h *Hub) fanout(channel string, from *subscriber, data []byte) {
	var slow []*subscriber

	h.mu.RLock()
	for s := range h.channels[channel] {
		if s == from {
			continue
		}
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow subscriber", "channel", channel)
		h.metrics.Dropped(dropSlowSubscriber)
		h.leave(channel, s)
		s.cancel()
	}
}

func (h *Hub) join(channel string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	h.logger.Debug("subscriber joined", "channel", channel, "subscribers", len(subs))
}

func (h *Hub) leave(channel string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.channels[channel]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	h.logger.Debug("subscriber left", "channel", channel, "subscribers", len(subs))
}

type hubPublisher struct {
	hub     *Hub
	channel string
}

func (p hubPublisher) Publish(_ context.Context, env message.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	p.hub.fanout(p.channel, nil, data)
	return nil
}
