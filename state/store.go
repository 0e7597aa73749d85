// Package state holds the operating state owned by one context.
//
// Each context owns a Store. Local mutations are merged and then broadcast as the
// full record; inbound records replace the local copy wholesale (last writer wins).
package state

import (
	"sync"

	"go.aimuz.me/voicechat/internal/types"
)

// BroadcastFunc publishes a full state record to the other contexts.
// It is called with the store locked and must not call back into the store
// or block.
type BroadcastFunc func(types.OperatingState)

// Store is a context's copy of the shared operating state.
type Store struct {
	mu        sync.Mutex
	current   types.OperatingState
	broadcast BroadcastFunc
}

// New creates a store holding the zero state. broadcast may be nil.
func New(broadcast BroadcastFunc) *Store {
	return &Store{broadcast: broadcast}
}

// Get returns the current record.
func (s *Store) Get() types.OperatingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set merges p into the record, broadcasts the result and returns it.
func (s *Store) Set(p types.StatePatch) types.OperatingState {
	return s.Update(func(types.OperatingState) types.StatePatch { return p })
}

// Update computes a patch from the current record, merges it and broadcasts
// the result. Used for read-modify-write mutations such as toggles.
func (s *Store) Update(fn func(cur types.OperatingState) types.StatePatch) types.OperatingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Merge(s.current, fn(s.current))
	if s.broadcast != nil {
		s.broadcast(s.current)
	}
	return s.current
}

// Replace installs a record received from another context. It does not broadcast.
func (s *Store) Replace(next types.OperatingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
}

// Merge applies the non-nil fields of p to cur. It is a shallow merge.
func Merge(cur types.OperatingState, p types.StatePatch) types.OperatingState {
	next := cur
	if p.Listening != nil {
		next.Listening = *p.Listening
	}
	if p.Speaking != nil {
		next.Speaking = *p.Speaking
	}
	if p.AutoSpeakOn != nil {
		next.AutoSpeakOn = *p.AutoSpeakOn
	}
	if p.AutoSendOn != nil {
		next.AutoSendOn = *p.AutoSendOn
	}
	if p.AutoListenOn != nil {
		next.AutoListenOn = *p.AutoListenOn
	}
	if p.ShowMore != nil {
		next.ShowMore = *p.ShowMore
	}
	return next
}

// Field names a toggleable flag of the operating state.
type Field string

const (
	FieldAutoSend   Field = "autoSendOn"
	FieldAutoSpeak  Field = "autoSpeakOn"
	FieldAutoListen Field = "autoListenOn"
	FieldShowMore   Field = "showMore"
)

// TogglePatch returns the patch that flips field f in cur.
// Only the persistent user toggles can be flipped this way; listening and
// speaking change through explicit actions.
func TogglePatch(cur types.OperatingState, f Field) (types.StatePatch, bool) {
	switch f {
	case FieldAutoSend:
		return types.StatePatch{AutoSendOn: types.Bool(!cur.AutoSendOn)}, true
	case FieldAutoSpeak:
		return types.StatePatch{AutoSpeakOn: types.Bool(!cur.AutoSpeakOn)}, true
	case FieldAutoListen:
		return types.StatePatch{AutoListenOn: types.Bool(!cur.AutoListenOn)}, true
	case FieldShowMore:
		return types.StatePatch{ShowMore: types.Bool(!cur.ShowMore)}, true
	}
	return types.StatePatch{}, false
}

// SetPatch returns the patch that sets field f to on.
func SetPatch(f Field, on bool) (types.StatePatch, bool) {
	switch f {
	case FieldAutoSend:
		return types.StatePatch{AutoSendOn: types.Bool(on)}, true
	case FieldAutoSpeak:
		return types.StatePatch{AutoSpeakOn: types.Bool(on)}, true
	case FieldAutoListen:
		return types.StatePatch{AutoListenOn: types.Bool(on)}, true
	case FieldShowMore:
		return types.StatePatch{ShowMore: types.Bool(on)}, true
	}
	return types.StatePatch{}, false
}

// Toggle flips field f and broadcasts. It reports false for unknown fields.
func (s *Store) Toggle(f Field) (types.OperatingState, bool) {
	ok := false
	next := s.Update(func(cur types.OperatingState) types.StatePatch {
		var p types.StatePatch
		p, ok = TogglePatch(cur, f)
		return p
	})
	return next, ok
}
