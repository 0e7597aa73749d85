package message

import "go.aimuz.me/voicechat/internal/types"

// LocalHandler handles every event of the local channel.
type LocalHandler interface {
	HandleGetState()
	HandleState(types.OperatingState)
	HandlePromptSelectedCode(PromptSelectedCode)
	HandlePromptOpenFiles(PromptOpenFiles)
	HandleSpeaking(Speaking)
}

// PeerHandler handles every event of the realtime peer channel.
type PeerHandler interface {
	HandleConnected(Connected)
	HandleDisconnected(Disconnected)
	HandleGetSelectedCode(GetSelectedCode)
	HandleGetOpenFiles(GetOpenFiles)
	HandleReceiveSelectedCode(ReceiveSelectedCode)
	HandleReceiveOpenFiles(ReceiveOpenFiles)
	HandleCodeSnippet(CodeSnippet)
}

// DispatchLocal delivers m to h. It reports false if m is not a local event.
func DispatchLocal(h LocalHandler, m Message) bool {
	switch m := m.(type) {
	case GetState:
		h.HandleGetState()
	case State:
		h.HandleState(m.OperatingState)
	case PromptSelectedCode:
		h.HandlePromptSelectedCode(m)
	case PromptOpenFiles:
		h.HandlePromptOpenFiles(m)
	case Speaking:
		h.HandleSpeaking(m)
	default:
		return false
	}
	return true
}

// DispatchPeer delivers m to h. It reports false if m is not a peer event.
func DispatchPeer(h PeerHandler, m Message) bool {
	switch m := m.(type) {
	case Connected:
		h.HandleConnected(m)
	case Disconnected:
		h.HandleDisconnected(m)
	case GetSelectedCode:
		h.HandleGetSelectedCode(m)
	case GetOpenFiles:
		h.HandleGetOpenFiles(m)
	case ReceiveSelectedCode:
		h.HandleReceiveSelectedCode(m)
	case ReceiveOpenFiles:
		h.HandleReceiveOpenFiles(m)
	case CodeSnippet:
		h.HandleCodeSnippet(m)
	default:
		return false
	}
	return true
}
