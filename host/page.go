// Package host describes the chat page the agent drives.
//
// The agent reaches the page only through fixed selectors. A markup change on
// the page breaks these lookups; lookups that find nothing are skipped, never
// reported as errors.
package host

// Selector identifies elements on the host page.
type Selector string

// Selectors of the chat page.
const (
	PromptInput   Selector = "#prompt-textarea"
	SendButton    Selector = `button[data-testid="send-button"]`
	StopStreaming Selector = `button[aria-label="Stop generating"]`
	StopSpeaking  Selector = `button[aria-label="Stop"]`
	ReadAloud     Selector = `button[aria-label="Read Aloud"]`
)

// Page is the DOM surface of the host chat page.
type Page interface {
	// Exists reports whether at least one element matches sel.
	Exists(sel Selector) bool
	// Click invokes the most recently rendered element matching sel.
	// It reports false if nothing matches.
	Click(sel Selector) bool
	// Value returns the text of the input matching sel.
	Value(sel Selector) (string, bool)
	// SetValue replaces the text of the input matching sel.
	SetValue(sel Selector, text string) bool
}
