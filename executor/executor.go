// Package executor performs the agent's effects on the host page and detects
// their completion by polling, since the page offers no completion callbacks.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voicechat/host"
	"go.aimuz.me/voicechat/internal/types"
	"go.aimuz.me/voicechat/poll"
	"go.aimuz.me/voicechat/state"
)

// Poll keys.
const (
	KeyGenerating = "generating"
	KeySpeaking   = "speaking"
)

// Recognizer is the part of the recognizer driver the executor needs.
type Recognizer interface {
	Reset()
}

// Config holds the settle delays that order the host's asynchronous rendering.
type Config struct {
	// SubmitSettle is waited after submitting before watching the reply stream.
	SubmitSettle time.Duration
	// SpeakSettle is waited after read-aloud before watching the stop control.
	SpeakSettle time.Duration
	// ListenSettle is waited after a recognizer reset before listening resumes.
	ListenSettle time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns the settle delays tuned for the chat page.
func DefaultConfig() Config {
	return Config{
		SubmitSettle: 1500 * time.Millisecond,
		SpeakSettle:  500 * time.Millisecond,
		ListenSettle: 300 * time.Millisecond,
	}
}

// Executor runs Submit, Speak, Stop and Clear against the page and keeps the
// operating state in step with them.
type Executor struct {
	ctx    context.Context
	page   host.Page
	store  *state.Store
	poller *poll.Poller
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	recognizer Recognizer
	onSpeaking func(bool)

	// speakMu serializes Speak so a read-aloud is never started twice.
	speakMu sync.Mutex
}

// New creates an executor. ctx bounds every poll and delayed effect it starts.
func New(ctx context.Context, page host.Page, store *state.Store, poller *poll.Poller, cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		ctx:    ctx,
		page:   page,
		store:  store,
		poller: poller,
		cfg:    cfg,
		logger: logger,
	}
}

// SetRecognizer sets the recognizer reset after speaking when auto-listen is on.
func (e *Executor) SetRecognizer(r Recognizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recognizer = r
}

// OnSpeaking sets a hook called after every speaking transition.
func (e *Executor) OnSpeaking(fn func(speaking bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSpeaking = fn
}

// ─────────────────────────────────────────────────────────────────────────────
// Input
// ─────────────────────────────────────────────────────────────────────────────

// Listening reports whether unmatched transcripts are dictation.
func (e *Executor) Listening() bool {
	return e.store.Get().Listening
}

// Input returns the pending input text.
func (e *Executor) Input() string {
	text, _ := e.page.Value(host.PromptInput)
	return text
}

// Dictate appends text to the pending input and submits when auto-send is on.
func (e *Executor) Dictate(text string) {
	cur, ok := e.page.Value(host.PromptInput)
	if !ok {
		e.logger.Debug("prompt input missing, dictation skipped")
		return
	}
	if cur != "" {
		text = cur + " " + text
	}
	e.page.SetValue(host.PromptInput, text)

	if e.store.Get().AutoSendOn {
		e.Submit()
	}
}

// Compose replaces the pending input and submits when auto-send is on.
func (e *Executor) Compose(text string) {
	if !e.page.SetValue(host.PromptInput, text) {
		e.logger.Debug("prompt input missing, compose skipped")
		return
	}
	if e.store.Get().AutoSendOn {
		e.Submit()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Actions
// ─────────────────────────────────────────────────────────────────────────────

// Submit sends the pending input. With auto-speak on, it waits for the reply
// to finish streaming and then speaks it.
func (e *Executor) Submit() {
	if !e.page.Click(host.SendButton) {
		e.logger.Debug("send control missing")
	}

	if !e.store.Get().AutoSpeakOn {
		return
	}

	err := e.poller.Start(e.ctx, poll.Spec{
		Key:    KeyGenerating,
		Settle: e.cfg.SubmitSettle,
		Cond:   func() bool { return !e.page.Exists(host.StopStreaming) },
	}, func(err error) {
		if err != nil {
			e.logger.Debug("reply wait ended", "error", err)
			return
		}
		e.Speak()
	})
	if err != nil {
		e.logger.Debug("reply wait not started", "error", err)
	}
}

// Speak reads the latest reply aloud and marks the agent as speaking until the
// page's stop control disappears. With auto-listen on, listening resumes after
// the recognizer is reset.
func (e *Executor) Speak() {
	e.speakMu.Lock()
	defer e.speakMu.Unlock()

	if e.poller.InFlight(KeySpeaking) {
		e.logger.Debug("already speaking")
		return
	}
	if !e.page.Click(host.ReadAloud) {
		e.logger.Debug("read aloud control missing")
		return
	}

	e.store.Set(types.StatePatch{Speaking: types.Bool(true)})
	e.notifySpeaking(true)

	err := e.poller.Start(e.ctx, poll.Spec{
		Key:    KeySpeaking,
		Settle: e.cfg.SpeakSettle,
		Cond:   func() bool { return !e.page.Exists(host.StopSpeaking) },
	}, e.speakingDone)
	if err != nil {
		e.logger.Debug("speaking wait not started", "error", err)
	}
}

func (e *Executor) speakingDone(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if err != nil {
		e.logger.Warn("speaking wait ended", "error", err)
	}
	// Stop may already have cleared speaking.
	if !e.store.Get().Speaking {
		return
	}

	st := e.store.Set(types.StatePatch{Speaking: types.Bool(false)})
	e.notifySpeaking(false)

	if err != nil || !st.AutoListenOn {
		return
	}

	e.mu.Lock()
	r := e.recognizer
	e.mu.Unlock()
	if r != nil {
		r.Reset()
	}

	e.after(e.cfg.ListenSettle, func() {
		e.store.Set(types.StatePatch{Listening: types.Bool(true)})
	})
}

// Stop halts streaming and speaking and leaves listening mode.
func (e *Executor) Stop() {
	if !e.page.Click(host.StopStreaming) {
		e.logger.Debug("stop streaming control missing")
	}
	if !e.page.Click(host.StopSpeaking) {
		e.logger.Debug("stop speaking control missing")
	}

	wasSpeaking := e.store.Get().Speaking
	e.store.Set(types.StatePatch{
		Listening: types.Bool(false),
		Speaking:  types.Bool(false),
	})
	if wasSpeaking {
		e.notifySpeaking(false)
	}
}

// Clear empties the pending input and leaves listening mode.
func (e *Executor) Clear() {
	if !e.page.SetValue(host.PromptInput, "") {
		e.logger.Debug("prompt input missing")
	}
	e.store.Set(types.StatePatch{Listening: types.Bool(false)})
}

func (e *Executor) notifySpeaking(speaking bool) {
	e.mu.Lock()
	fn := e.onSpeaking
	e.mu.Unlock()
	if fn != nil {
		fn(speaking)
	}
}

// after runs fn once d has elapsed unless the executor's context ends first.
func (e *Executor) after(d time.Duration, fn func()) {
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			fn()
		case <-e.ctx.Done():
		}
	}()
}
