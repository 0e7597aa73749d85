// Package agent is the page agent: it listens, matches commands, drives the
// chat page and keeps the control surface's copy of the operating state
// current.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.aimuz.me/voicechat/command"
	"go.aimuz.me/voicechat/executor"
	"go.aimuz.me/voicechat/host"
	"go.aimuz.me/voicechat/internal/types"
	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
	"go.aimuz.me/voicechat/poll"
	"go.aimuz.me/voicechat/recognizer"
	"go.aimuz.me/voicechat/state"
)

// ContextName labels the agent in logs and metrics.
const ContextName = "agent"

// Command names.
const (
	CmdStopListening  = "STOP_LISTENING"
	CmdNevermind      = "NEVERMIND"
	CmdStop           = "STOP"
	CmdToggleSend     = "TOGGLE_SEND"
	CmdToggleSpeak    = "TOGGLE_SPEAK"
	CmdToggleListen   = "TOGGLE_LISTEN"
	CmdToggleShowMore = "TOGGLE_SHOW_MORE"
	CmdAddSelected    = "ADD_SELECTED_CODE"
	CmdAddOpenFiles   = "ADD_OPEN_FILES"
	CmdSend           = "SEND"
	CmdSpeak          = "SPEAK"
	CmdListen         = "LISTEN"
)

// Config holds configuration for an Agent.
type Config struct {
	Lang     string
	Executor executor.Config
	Poll     poll.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Agent owns the authoritative operating state.
type Agent struct {
	ctx        context.Context
	store      *state.Store
	router     *message.Router[message.LocalHandler]
	exec       *executor.Executor
	driver     *recognizer.Driver
	dispatcher *command.Dispatcher
	table      *command.Table
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New wires an agent to the local channel t, the page and a recognition
// capability. ctx bounds the agent's polls and outbound messages.
func New(ctx context.Context, t message.Transport, page host.Page, c recognizer.Capability, cfg Config) (*Agent, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", ContextName)

	a := &Agent{
		ctx:     ctx,
		logger:  logger,
		metrics: cfg.Metrics,
	}

	a.router = message.NewLocalRouter(t, a, message.Options{
		Name:    ContextName,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	a.store = state.New(a.broadcast)

	pcfg := cfg.Poll
	if pcfg.Logger == nil {
		pcfg.Logger = logger
	}
	if pcfg.Metrics == nil {
		pcfg.Metrics = cfg.Metrics
	}
	ecfg := cfg.Executor
	if ecfg.Logger == nil {
		ecfg.Logger = logger
	}
	a.exec = executor.New(ctx, page, a.store, poll.New(pcfg), ecfg)
	a.exec.OnSpeaking(func(speaking bool) {
		a.router.Post(a.ctx, message.Speaking{Speaking: speaking})
	})

	driver, err := recognizer.NewDriver(c, cfg.Lang, a.HandleTranscript, logger)
	if err != nil {
		return nil, fmt.Errorf("create recognizer driver: %w", err)
	}
	a.driver = driver
	a.exec.SetRecognizer(driver)

	a.table = a.commands()
	a.dispatcher = command.NewDispatcher(a.table, a.exec, logger, cfg.Metrics)
	return a, nil
}

// Run starts recognition and serves the local channel until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.driver.Start(); err != nil {
		return fmt.Errorf("start recognizer: %w", err)
	}
	defer a.driver.Stop()

	a.logger.Info("agent started", "sender", a.router.Sender())
	err := a.router.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// State returns the current operating state.
func (a *Agent) State() types.OperatingState {
	return a.store.Get()
}

// Executor returns the agent's action executor.
func (a *Agent) Executor() *executor.Executor {
	return a.exec
}

// Commands returns the agent's command table.
func (a *Agent) Commands() *command.Table {
	return a.table
}

// HandleTranscript routes one finalized transcript.
func (a *Agent) HandleTranscript(text string) {
	outcome, name := a.dispatcher.Handle(text)
	a.logger.Debug("transcript handled", "outcome", outcome, "command", name)
}

func (a *Agent) broadcast(s types.OperatingState) {
	a.router.Post(a.ctx, message.State{OperatingState: s})
	a.metrics.Broadcast(ContextName)
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func (a *Agent) commands() *command.Table {
	return command.NewTable(
		command.Command{Name: CmdStopListening, Rule: command.AllOf("stop", "listening"), Action: a.setListening(false)},
		command.Command{Name: CmdNevermind, Rule: command.AnyOf([]string{"nevermind"}, []string{"never mind"}), Action: func(string) { a.exec.Clear() }},
		command.Command{Name: CmdStop, Rule: command.AllOf("stop"), Action: func(string) { a.exec.Stop() }},
		command.Command{Name: CmdToggleSend, Rule: command.AllOf("toggle", "send"), Action: a.toggle(state.FieldAutoSend)},
		command.Command{Name: CmdToggleSpeak, Rule: command.AllOf("toggle", "speak"), Action: a.toggle(state.FieldAutoSpeak)},
		command.Command{Name: CmdToggleListen, Rule: command.AllOf("toggle", "listen"), Action: a.toggle(state.FieldAutoListen)},
		command.Command{Name: CmdToggleShowMore, Rule: command.AllOf("toggle", "show more"), Action: a.toggle(state.FieldShowMore)},
		command.Command{Name: CmdAddSelected, Rule: command.AllOf("add", "selected code"), Action: a.requestSelectedCode},
		command.Command{Name: CmdAddOpenFiles, Rule: command.AllOf("add", "open files"), Action: a.requestOpenFiles},
		command.Command{Name: CmdSend, Rule: command.AnyOf([]string{"submit"}, []string{"send it"}), Action: func(string) { a.exec.Submit() }},
		command.Command{Name: CmdSpeak, Rule: command.AllOf("speak"), Action: func(string) { a.exec.Speak() }},
		command.Command{Name: CmdListen, Rule: command.AllOf("listen"), Action: a.setListening(true)},
	)
}

func (a *Agent) setListening(on bool) command.Action {
	return func(string) {
		a.store.Set(types.StatePatch{Listening: types.Bool(on)})
	}
}

func (a *Agent) toggle(f state.Field) command.Action {
	return func(string) {
		if _, ok := a.store.Toggle(f); !ok {
			a.logger.Warn("unknown toggle field", "field", f)
		}
	}
}

func (a *Agent) requestSelectedCode(string) {
	a.router.Post(a.ctx, message.PromptSelectedCode{Prompt: a.exec.Input()})
}

func (a *Agent) requestOpenFiles(string) {
	a.router.Post(a.ctx, message.PromptOpenFiles{Prompt: a.exec.Input()})
}

// ─────────────────────────────────────────────────────────────────────────────
// message.LocalHandler
// ─────────────────────────────────────────────────────────────────────────────

// HandleGetState publishes the current state.
func (a *Agent) HandleGetState() {
	a.broadcast(a.store.Get())
}

// HandleState adopts a state record from the control surface.
func (a *Agent) HandleState(s types.OperatingState) {
	a.store.Replace(s)
}

// HandlePromptSelectedCode places a prompt with the delivered selection in
// the input. Requests without code are ignored.
func (a *Agent) HandlePromptSelectedCode(m message.PromptSelectedCode) {
	if m.Code == "" {
		a.logger.Debug("selected code request without code ignored")
		return
	}
	a.exec.Compose(SelectedCodePrompt(m.Prompt, m.FileName, m.Code))
}

// HandlePromptOpenFiles places a prompt with the delivered files in the input.
func (a *Agent) HandlePromptOpenFiles(m message.PromptOpenFiles) {
	if len(m.Files) == 0 {
		a.logger.Debug("open files request without files ignored")
		return
	}
	a.exec.Compose(OpenFilesPrompt(m.Prompt, m.Files))
}

// HandleSpeaking implements message.LocalHandler. The agent is the source of
// speaking events and ignores them.
func (a *Agent) HandleSpeaking(message.Speaking) {}
