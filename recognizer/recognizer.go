// Package recognizer drives a continuous speech recognition capability and
// turns it into a stream of finalized transcripts.
package recognizer

import (
	"errors"
	"sync"
)

// ErrUnsupported is returned when no recognition capability is available.
// The voice subsystem cannot start without one.
var ErrUnsupported = errors.New("speech recognition not supported")

// Alternative is one hypothesis for an utterance.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognized utterance. Alternatives are ordered best first.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"isFinal"`
}

// Settings configures a capability before it starts.
type Settings struct {
	Lang            string // BCP 47 tag, e.g. "en-US"
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Capability defines the interface for continuous speech recognition.
// Implementations wrap a platform recognizer.
type Capability interface {
	// Name returns the capability identifier.
	Name() string

	// Configure applies settings. It is called before Start.
	Configure(Settings)

	// OnResult sets the result callback. results holds every result of the
	// current session, oldest first.
	OnResult(fn func(results []Result))

	// OnEnd sets the callback fired whenever recognition stops, whether
	// naturally at the end of an utterance or after Abort.
	OnEnd(fn func())

	// Start begins capture.
	Start() error

	// Abort stops capture immediately; OnEnd still fires.
	Abort()

	// Close releases resources held by the capability.
	Close() error
}

// Registry holds registered capabilities in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	caps  map[string]Capability
}

// NewRegistry creates a new capability registry.
func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[string]Capability),
	}
}

// Register adds a capability, replacing any with the same name.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.caps[c.Name()]; !ok {
		r.order = append(r.order, c.Name())
	}
	r.caps[c.Name()] = c
}

// Get returns a capability by name.
func (r *Registry) Get(name string) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// List returns all registered capabilities in registration order.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.caps[name])
	}
	return result
}

// Default returns the named capability, or the first registered one when name
// is empty. It returns ErrUnsupported when nothing suitable is registered.
func (r *Registry) Default(name string) (Capability, error) {
	if name != "" {
		if c := r.Get(name); c != nil {
			return c, nil
		}
		return nil, ErrUnsupported
	}
	list := r.List()
	if len(list) == 0 {
		return nil, ErrUnsupported
	}
	return list[0], nil
}

// Close releases all capabilities.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.List() {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
