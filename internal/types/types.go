// Package types provides shared type definitions for the application.
package types

// OperatingState is the agent's operating mode, mirrored in every context.
// Equality is structural; the record has no identity beyond its fields.
type OperatingState struct {
	Listening    bool `json:"listening"`
	Speaking     bool `json:"speaking"`
	AutoSpeakOn  bool `json:"autoSpeakOn"`
	AutoSendOn   bool `json:"autoSendOn"`
	AutoListenOn bool `json:"autoListenOn"`
	ShowMore     bool `json:"showMore"`
}

// StatePatch is a partial OperatingState. Nil fields are left untouched by a merge.
type StatePatch struct {
	Listening    *bool `json:"listening,omitempty"`
	Speaking     *bool `json:"speaking,omitempty"`
	AutoSpeakOn  *bool `json:"autoSpeakOn,omitempty"`
	AutoSendOn   *bool `json:"autoSendOn,omitempty"`
	AutoListenOn *bool `json:"autoListenOn,omitempty"`
	ShowMore     *bool `json:"showMore,omitempty"`
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }

// ─────────────────────────────────────────────────────────────────────────────
// Prompt Relay Types
// ─────────────────────────────────────────────────────────────────────────────

// File is an editor file forwarded by the remote peer.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SelectedCode is the editor selection returned by the remote peer.
type SelectedCode struct {
	Prompt   string `json:"prompt"`
	Code     string `json:"code"`
	FileName string `json:"fileName"`
}

// OpenFiles is the set of open editor files returned by the remote peer.
type OpenFiles struct {
	Prompt string `json:"prompt"`
	Files  []File `json:"files"`
}

// PeerStatus is the connection status of the remote peer as seen by the control surface.
type PeerStatus string

const (
	PeerDisconnected PeerStatus = "disconnected"
	PeerConnected    PeerStatus = "connected"
)
