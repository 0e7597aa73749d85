package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.aimuz.me/voicechat/message"
	"nhooyr.io/websocket"
)

// DefaultReadLimit bounds one inbound frame; open-file payloads can be large.
const DefaultReadLimit = 1 << 20

// WebSocket is a realtime channel client. Every envelope published is sent as
// one text frame; every text frame received is decoded as an envelope.
type WebSocket struct {
	url    string
	conn   *websocket.Conn
	in     chan message.Envelope
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// WebSocketConfig holds configuration for DialWebSocket.
type WebSocketConfig struct {
	URL       string
	Header    http.Header
	ReadLimit int64
	Logger    *slog.Logger
}

// DialWebSocket connects to a realtime channel and starts reading.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocket, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, &websocket.DialOptions{HTTPHeader: cfg.Header})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	w := &WebSocket{
		url:    cfg.URL,
		conn:   conn,
		in:     make(chan message.Envelope, defaultBuffer),
		done:   make(chan struct{}),
		logger: logger.With("url", cfg.URL),
	}
	go w.readLoop()

	return w, nil
}

// Publish sends env as a text frame.
func (w *WebSocket) Publish(ctx context.Context, env message.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// Receive returns inbound envelopes. The channel closes when the connection ends.
func (w *WebSocket) Receive() <-chan message.Envelope {
	return w.in
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	return w.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (w *WebSocket) readLoop() {
	defer close(w.in)

	ctx := context.Background()

	for {
		_, data, err := w.conn.Read(ctx)
		if err != nil {
			select {
			case <-w.done:
			default:
				w.logger.Error("read realtime channel", "error", err)
			}
			return
		}

		var env message.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.logger.Debug("drop undecodable frame", "error", err)
			continue
		}

		select {
		case w.in <- env:
		case <-w.done:
			return
		case <-time.After(100 * time.Millisecond):
			w.logger.Warn("inbound queue full, dropping envelope", "event", env.Event)
		}
	}
}
