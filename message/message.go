// Package message defines the events exchanged between contexts and the router
// that delivers them.
//
// Events form a closed union. Each context implements one handler interface
// with a method per event kind, so adding an event breaks every context that
// has not handled it yet.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.aimuz.me/voicechat/internal/types"
)

var (
	// ErrUnknownEvent is returned when an envelope names no known event.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedPayload is returned when a payload is not valid for its event.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Event is an event name on the wire.
type Event string

// Local channel events (page agent <-> control surface).
const (
	EventGetState           Event = "GET_STATE"
	EventState              Event = "STATE"
	EventPromptSelectedCode Event = "PROMPT_SELECTED_CODE"
	EventPromptOpenFiles    Event = "PROMPT_OPEN_FILES"
	EventSpeaking           Event = "SPEAKING"
)

// Peer channel events (control surface <-> remote peer).
const (
	EventConnected           Event = "CONNECTED"
	EventDisconnected        Event = "DISCONNECTED"
	EventGetSelectedCode     Event = "GET_SELECTED_CODE"
	EventGetOpenFiles        Event = "GET_OPEN_FILES"
	EventReceiveSelectedCode Event = "RECEIVE_SELECTED_CODE"
	EventReceiveOpenFiles    Event = "RECEIVE_OPEN_FILES"
	EventCodeSnippet         Event = "CODE_SNIPPET"
)

// Envelope is the unit carried by a transport.
type Envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Sender identifies the publishing router; used to drop echoes.
	Sender string `json:"sender,omitempty"`
}

// Message is one member of the event union.
type Message interface {
	Event() Event
	sealed()
}

// ─────────────────────────────────────────────────────────────────────────────
// Local Events
// ─────────────────────────────────────────────────────────────────────────────

// GetState asks the receiving context to publish its state.
type GetState struct{}

// State carries a full operating state record.
type State struct {
	types.OperatingState
}

// PromptSelectedCode asks for (prompt only) or delivers (with code) the editor selection.
type PromptSelectedCode struct {
	Prompt   string `json:"prompt"`
	Code     string `json:"code,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// PromptOpenFiles asks for (prompt only) or delivers (with files) the open editor files.
type PromptOpenFiles struct {
	Prompt string       `json:"prompt"`
	Files  []types.File `json:"files,omitempty"`
}

// Speaking reports a change of the speaking flag.
type Speaking struct {
	Speaking bool `json:"speaking"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Peer Events
// ─────────────────────────────────────────────────────────────────────────────

// Connected announces a peer on the realtime channel.
type Connected struct {
	Optional string `json:"optional,omitempty"`
}

// Disconnected announces that a peer left the realtime channel.
type Disconnected struct {
	Optional string `json:"optional,omitempty"`
}

// GetSelectedCode asks the remote peer for its editor selection.
type GetSelectedCode struct {
	Prompt string `json:"prompt"`
}

// GetOpenFiles asks the remote peer for its open files.
type GetOpenFiles struct {
	Prompt string `json:"prompt"`
}

// ReceiveSelectedCode is the remote peer's answer to GetSelectedCode.
type ReceiveSelectedCode types.SelectedCode

// ReceiveOpenFiles is the remote peer's answer to GetOpenFiles.
type ReceiveOpenFiles types.OpenFiles

// CodeSnippet is a snippet pushed through the relay.
type CodeSnippet struct {
	Snippet string `json:"snippet"`
}

func (GetState) Event() Event            { return EventGetState }
func (State) Event() Event               { return EventState }
func (PromptSelectedCode) Event() Event  { return EventPromptSelectedCode }
func (PromptOpenFiles) Event() Event     { return EventPromptOpenFiles }
func (Speaking) Event() Event            { return EventSpeaking }
func (Connected) Event() Event           { return EventConnected }
func (Disconnected) Event() Event        { return EventDisconnected }
func (GetSelectedCode) Event() Event     { return EventGetSelectedCode }
func (GetOpenFiles) Event() Event        { return EventGetOpenFiles }
func (ReceiveSelectedCode) Event() Event { return EventReceiveSelectedCode }
func (ReceiveOpenFiles) Event() Event    { return EventReceiveOpenFiles }
func (CodeSnippet) Event() Event         { return EventCodeSnippet }

func (GetState) sealed()            {}
func (State) sealed()               {}
func (PromptSelectedCode) sealed()  {}
func (PromptOpenFiles) sealed()     {}
func (Speaking) sealed()            {}
func (Connected) sealed()           {}
func (Disconnected) sealed()        {}
func (GetSelectedCode) sealed()     {}
func (GetOpenFiles) sealed()        {}
func (ReceiveSelectedCode) sealed() {}
func (ReceiveOpenFiles) sealed()    {}
func (CodeSnippet) sealed()         {}

// ─────────────────────────────────────────────────────────────────────────────
// Codec
// ─────────────────────────────────────────────────────────────────────────────

// Encode wraps m in an envelope.
func Encode(m Message) (Envelope, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", m.Event(), err)
	}
	return Envelope{Event: m.Event(), Payload: payload}, nil
}

// stateFields are the keys a STATE payload must carry. A partial record would
// silently reset the missing flags on replace, so it is rejected instead.
var stateFields = []string{"listening", "speaking", "autoSpeakOn", "autoSendOn", "autoListenOn", "showMore"}

// Decode turns an envelope into a typed message. It returns ErrUnknownEvent
// for unknown names and ErrMalformedPayload when required fields are missing
// or have the wrong type.
func Decode(env Envelope) (Message, error) {
	switch env.Event {
	case EventGetState:
		return GetState{}, nil
	case EventState:
		var m State
		return decodeInto(env, &m, stateFields...)
	case EventPromptSelectedCode:
		var m PromptSelectedCode
		return decodeInto(env, &m, "prompt")
	case EventPromptOpenFiles:
		var m PromptOpenFiles
		return decodeInto(env, &m, "prompt")
	case EventSpeaking:
		var m Speaking
		return decodeInto(env, &m, "speaking")
	case EventConnected:
		var m Connected
		return decodeOptional(env, &m)
	case EventDisconnected:
		var m Disconnected
		return decodeOptional(env, &m)
	case EventGetSelectedCode:
		var m GetSelectedCode
		return decodeInto(env, &m, "prompt")
	case EventGetOpenFiles:
		var m GetOpenFiles
		return decodeInto(env, &m, "prompt")
	case EventReceiveSelectedCode:
		var m ReceiveSelectedCode
		return decodeInto(env, &m, "prompt", "code", "fileName")
	case EventReceiveOpenFiles:
		var m ReceiveOpenFiles
		return decodeInto(env, &m, "prompt", "files")
	case EventCodeSnippet:
		var m CodeSnippet
		return decodeInto(env, &m, "snippet")
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// decodeInto unmarshals env.Payload into dst (a pointer to a Message value)
// after checking that every required key is present and not null.
func decodeInto[T Message](env Envelope, dst *T, required ...string) (Message, error) {
	if isNull(env.Payload) {
		return nil, fmt.Errorf("%w: %s: empty payload", ErrMalformedPayload, env.Event)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
	}
	for _, k := range required {
		v, ok := fields[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing %q", ErrMalformedPayload, env.Event, k)
		}
		if isNull(v) {
			return nil, fmt.Errorf("%w: %s: null %q", ErrMalformedPayload, env.Event, k)
		}
	}

	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
	}
	return *dst, nil
}

// decodeOptional accepts an empty payload.
func decodeOptional[T Message](env Envelope, dst *T) (Message, error) {
	if isNull(env.Payload) {
		return *dst, nil
	}
	return decodeInto(env, dst)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
