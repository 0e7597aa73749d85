package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.aimuz.me/voicechat/message"
)

// DataChannelLabel names the data channel that carries envelopes.
const DataChannelLabel = "voicechat"

// maxSDPSize bounds an SDP answer read from the signaling endpoint.
const maxSDPSize = 64 << 10

// ErrSignaling is returned when the SDP exchange fails.
var ErrSignaling = errors.New("sdp exchange failed")

// DataChannel carries envelopes over a WebRTC data channel, for a remote peer
// reached peer-to-peer instead of through the realtime hub.
type DataChannel struct {
	dc     *webrtc.DataChannel
	pc     *webrtc.PeerConnection
	in     chan message.Envelope
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// WebRTCConfig holds configuration for DialDataChannel and AnswerDataChannel.
type WebRTCConfig struct {
	// URL is the signaling endpoint the offer is posted to. Unused when answering.
	URL string
	// ICEServers lists STUN/TURN URLs. Empty uses host candidates only.
	ICEServers []string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c WebRTCConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c WebRTCConfig) newPeerConnection() (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if len(c.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.ICEServers})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// NewDataChannel wraps dc. Callbacks are installed immediately, so wrap the
// channel before it opens. Closing the wrapper closes pc when it is not nil.
func NewDataChannel(dc *webrtc.DataChannel, pc *webrtc.PeerConnection, logger *slog.Logger) *DataChannel {
	d := newDataChannel(dc, logger)
	d.pc = pc
	dc.OnMessage(d.handleMessage)
	dc.OnClose(d.shutdown)
	return d
}

// DialDataChannel opens a data channel to the peer behind cfg.URL. The SDP
// offer is posted as application/sdp and the response body is taken as the
// answer. DialDataChannel returns once the channel is open.
func DialDataChannel(ctx context.Context, cfg WebRTCConfig) (*DataChannel, error) {
	logger := cfg.logger().With("url", cfg.URL)

	pc, err := cfg.newPeerConnection()
	if err != nil {
		return nil, err
	}
	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	opened := make(chan struct{})
	var once sync.Once
	dc.OnOpen(func() { once.Do(func() { close(opened) }) })
	d := NewDataChannel(dc, pc, logger)

	if err := d.connect(ctx, cfg); err != nil {
		_ = d.Close()
		return nil, err
	}

	select {
	case <-opened:
		logger.Info("data channel opened")
		return d, nil
	case <-ctx.Done():
		_ = d.Close()
		return nil, fmt.Errorf("wait for data channel: %w", ctx.Err())
	}
}

func (d *DataChannel) connect(ctx context.Context, cfg WebRTCConfig) error {
	offer, err := d.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(d.pc)
	if err := d.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return fmt.Errorf("gather candidates: %w", ctx.Err())
	}

	answer, err := exchangeSDP(ctx, cfg, d.pc.LocalDescription().SDP)
	if err != nil {
		return err
	}
	if err := d.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func exchangeSDP(ctx context.Context, cfg WebRTCConfig, offer string) (string, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSDPSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: status %d: %s", ErrSignaling, resp.StatusCode, bytes.TrimSpace(body))
	}
	return string(body), nil
}

// AnswerDataChannel answers a remote SDP offer and returns the SDP answer.
// accept is called with the wrapped channel once the remote side opens the
// envelope data channel. The peer connection is closed if it fails before
// that.
func AnswerDataChannel(offer string, cfg WebRTCConfig, accept func(*DataChannel)) (string, error) {
	logger := cfg.logger()

	pc, err := cfg.newPeerConnection()
	if err != nil {
		return "", err
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		d := NewDataChannel(dc, pc, logger)
		dc.OnOpen(func() { accept(d) })
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed {
			logger.Debug("peer connection failed")
			_ = pc.Close()
		}
	})

	sdp, err := answerOffer(pc, offer)
	if err != nil {
		_ = pc.Close()
		return "", err
	}
	return sdp, nil
}

func answerOffer(pc *webrtc.PeerConnection, offer string) (string, error) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	}); err != nil {
		return "", fmt.Errorf("%w: set remote description: %v", ErrSignaling, err)
	}

	desc, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-gathered
	return pc.LocalDescription().SDP, nil
}

func newDataChannel(dc *webrtc.DataChannel, logger *slog.Logger) *DataChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataChannel{
		dc:     dc,
		in:     make(chan message.Envelope, defaultBuffer),
		logger: logger,
	}
}

// Publish sends env as a text message.
func (d *DataChannel) Publish(_ context.Context, env message.Envelope) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed || d.dc == nil {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := d.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("send data channel: %w", err)
	}
	return nil
}

// Receive returns inbound envelopes. The channel closes with the data channel.
func (d *DataChannel) Receive() <-chan message.Envelope {
	return d.in
}

// Close closes the data channel and its peer connection.
func (d *DataChannel) Close() error {
	if d.dc == nil {
		d.shutdown()
		return nil
	}
	err := d.dc.Close()
	if d.pc != nil {
		if cerr := d.pc.Close(); err == nil {
			err = cerr
		}
	}
	d.shutdown()
	return err
}

func (d *DataChannel) handleMessage(msg webrtc.DataChannelMessage) {
	if !msg.IsString {
		return
	}

	var env message.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		d.logger.Debug("drop undecodable data channel message", "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.in <- env:
	default:
		d.logger.Warn("inbound queue full, dropping envelope", "event", env.Event)
	}
}

func (d *DataChannel) shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.in)
}
