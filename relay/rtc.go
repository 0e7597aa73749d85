package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/transport"
)

const maxOfferBody = 64 << 10

// ServeRTC answers POST /rtc/{channel}. The body is an SDP offer; the response
// is the SDP answer. Once the caller's data channel opens it joins channel
// like any websocket subscriber.
func (h *Hub) ServeRTC(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if r.Method != http.MethodPost || channel == "" {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}

	offer, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOfferBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "offer too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read offer", http.StatusBadRequest)
		return
	}

	answer, err := transport.AnswerDataChannel(string(offer), transport.WebRTCConfig{Logger: h.logger},
		func(d *transport.DataChannel) { go h.bridge(channel, d) })
	if err != nil {
		h.logger.Debug("answer offer failed", "channel", channel, "error", err)
		if errors.Is(err, transport.ErrSignaling) {
			http.Error(w, "invalid offer", http.StatusBadRequest)
			return
		}
		http.Error(w, "answer offer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, answer)
}

// bridge subscribes a data channel to channel until either side ends.
func (h *Hub) bridge(channel string, d *transport.DataChannel) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer d.Close()

	sub := &subscriber{send: make(chan []byte, h.cfg.Buffer), cancel: cancel}
	h.join(channel, sub)
	defer h.leave(channel, sub)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-sub.send:
				var env message.Envelope
				if err := json.Unmarshal(data, &env); err != nil {
					continue
				}
				if err := d.Publish(ctx, env); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	in := d.Receive()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			h.fanout(channel, sub, data)
		}
	}
}
