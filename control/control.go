// Package control is the control surface: it mirrors the agent's operating
// state, exposes toggles, and bridges editor requests between the agent and
// the remote peer on the realtime channel.
package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voicechat/internal/types"
	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
	"go.aimuz.me/voicechat/state"
)

// ContextName labels the control surface in logs and metrics.
const ContextName = "control"

// Status texts, highest priority first.
const (
	StatusReceivedCode = "Received Code"
	StatusSpeaking     = "Speaking"
	StatusListening    = "Listening"
	StatusStandby      = "On Standby"
)

const (
	defaultAnnounceDelay = time.Second
	defaultActivityTTL   = 3 * time.Second
	shutdownTimeout      = time.Second
)

// Config holds configuration for a Surface.
type Config struct {
	// AnnounceDelay is waited after start before CONNECTED is sent to the peer.
	AnnounceDelay time.Duration
	// ActivityTTL is how long the last bridged event stays visible.
	ActivityTTL time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Surface is the control surface context.
type Surface struct {
	ctx      context.Context
	store    *state.Store
	local    *message.Router[message.LocalHandler]
	peer     *message.Router[message.PeerHandler]
	announce time.Duration
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu         sync.Mutex
	peerStatus types.PeerStatus
	activity   message.Event
	activityAt uint64
}

// New creates a surface on the local channel and the peer channel.
func New(ctx context.Context, local, peer message.Transport, cfg Config) *Surface {
	if cfg.AnnounceDelay <= 0 {
		cfg.AnnounceDelay = defaultAnnounceDelay
	}
	if cfg.ActivityTTL <= 0 {
		cfg.ActivityTTL = defaultActivityTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Surface{
		ctx:        ctx,
		announce:   cfg.AnnounceDelay,
		ttl:        cfg.ActivityTTL,
		logger:     logger.With("component", ContextName),
		metrics:    cfg.Metrics,
		peerStatus: types.PeerDisconnected,
	}
	opts := message.Options{Name: ContextName, Logger: cfg.Logger, Metrics: cfg.Metrics}
	s.local = message.NewLocalRouter(local, localHandler{s}, opts)
	s.peer = message.NewPeerRouter(peer, peerHandler{s}, opts)
	s.store = state.New(s.broadcast)
	return s
}

// Run asks the agent for its state, announces itself to the peer after the
// announce delay and serves both channels until ctx is done.
func (s *Surface) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, run := range []func(context.Context) error{s.local.Run, s.peer.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- run(ctx)
		}()
	}

	s.local.Post(ctx, message.GetState{})

	t := time.NewTimer(s.announce)
	select {
	case <-t.C:
		s.peer.Post(ctx, message.Connected{Optional: "optional"})
		s.logger.Info("announced to peer", "sender", s.peer.Sender())
	case <-ctx.Done():
		t.Stop()
	}

	<-ctx.Done()
	s.leave()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// leave tells the peer this surface is going away.
func (s *Surface) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.peer.Send(ctx, message.Disconnected{}); err != nil {
		s.logger.Debug("disconnect not sent", "error", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// State
// ─────────────────────────────────────────────────────────────────────────────

// State returns the mirrored operating state.
func (s *Surface) State() types.OperatingState {
	return s.store.Get()
}

// Toggle flips a user-facing flag and sends the full record to the agent.
func (s *Surface) Toggle(f state.Field) (types.OperatingState, bool) {
	return s.store.Toggle(f)
}

// Set sets a user-facing flag and sends the full record to the agent. It
// reports false for unknown fields.
func (s *Surface) Set(f state.Field, on bool) (types.OperatingState, bool) {
	p, ok := state.SetPatch(f, on)
	if !ok {
		return s.store.Get(), false
	}
	return s.store.Set(p), true
}

// PeerStatus reports whether the remote peer announced itself.
func (s *Surface) PeerStatus() types.PeerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerStatus
}

// Activity returns the last bridged event, or "" once it has expired.
func (s *Surface) Activity() message.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

// Status returns the one-line status shown to the user.
func (s *Surface) Status() string {
	if s.Activity() != "" {
		return StatusReceivedCode
	}
	st := s.store.Get()
	switch {
	case st.Speaking:
		return StatusSpeaking
	case st.Listening:
		return StatusListening
	default:
		return StatusStandby
	}
}

func (s *Surface) broadcast(st types.OperatingState) {
	s.local.Post(s.ctx, message.State{OperatingState: st})
	s.metrics.Broadcast(ContextName)
}

func (s *Surface) setPeerStatus(ps types.PeerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerStatus != ps {
		s.logger.Info("peer status changed", "status", ps)
	}
	s.peerStatus = ps
}

// noteActivity records ev and clears it after the TTL unless a newer event
// replaced it.
func (s *Surface) noteActivity(ev message.Event) {
	s.mu.Lock()
	s.activity = ev
	s.activityAt++
	gen := s.activityAt
	s.mu.Unlock()

	time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.activityAt == gen {
			s.activity = ""
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Local channel
// ─────────────────────────────────────────────────────────────────────────────

type localHandler struct{ s *Surface }

func (h localHandler) HandleGetState() {
	h.s.logger.Debug("state request ignored on control surface")
}

func (h localHandler) HandleState(st types.OperatingState) {
	h.s.store.Replace(st)
}

func (h localHandler) HandlePromptSelectedCode(m message.PromptSelectedCode) {
	if m.Code != "" {
		return
	}
	h.s.peer.Post(h.s.ctx, message.GetSelectedCode{Prompt: m.Prompt})
	h.s.noteActivity(message.EventGetSelectedCode)
}

func (h localHandler) HandlePromptOpenFiles(m message.PromptOpenFiles) {
	if len(m.Files) != 0 {
		return
	}
	h.s.peer.Post(h.s.ctx, message.GetOpenFiles{Prompt: m.Prompt})
	h.s.noteActivity(message.EventGetOpenFiles)
}

func (h localHandler) HandleSpeaking(m message.Speaking) {
	cur := h.s.store.Get()
	h.s.store.Replace(state.Merge(cur, types.StatePatch{Speaking: types.Bool(m.Speaking)}))
}

// ─────────────────────────────────────────────────────────────────────────────
// Peer channel
// ─────────────────────────────────────────────────────────────────────────────

type peerHandler struct{ s *Surface }

func (h peerHandler) HandleConnected(message.Connected) {
	h.s.setPeerStatus(types.PeerConnected)
}

func (h peerHandler) HandleDisconnected(message.Disconnected) {
	h.s.setPeerStatus(types.PeerDisconnected)
}

// Requests are answered by the remote editor, not by this surface.
func (h peerHandler) HandleGetSelectedCode(message.GetSelectedCode) {}
func (h peerHandler) HandleGetOpenFiles(message.GetOpenFiles)       {}

func (h peerHandler) HandleReceiveSelectedCode(m message.ReceiveSelectedCode) {
	h.s.noteActivity(message.EventReceiveSelectedCode)
	h.s.local.Post(h.s.ctx, message.PromptSelectedCode{
		Prompt:   m.Prompt,
		Code:     m.Code,
		FileName: m.FileName,
	})
}

func (h peerHandler) HandleReceiveOpenFiles(m message.ReceiveOpenFiles) {
	h.s.noteActivity(message.EventReceiveOpenFiles)
	h.s.local.Post(h.s.ctx, message.PromptOpenFiles{Prompt: m.Prompt, Files: m.Files})
}

func (h peerHandler) HandleCodeSnippet(m message.CodeSnippet) {
	h.s.logger.Info("code snippet received", "bytes", len(m.Snippet))
	h.s.noteActivity(message.EventCodeSnippet)
}
