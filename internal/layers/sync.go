package layers

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/chat"
)

// State is the exposed layer state for one kind: the derived items and a
// visibility flag. State values are replaced atomically, never patched.
type State struct {
	Items   []Result `json:"items"`
	Visible bool     `json:"visible"`
}

// Populated reports whether the state holds at least one item.
func (s State) Populated() bool {
	return len(s.Items) > 0
}

// Synchronizer re-derives per-kind layer state from the message log on every
// log change. State is ephemeral: it can be rebuilt at any time from the
// messages, so there is nothing to persist and nothing to migrate.
type Synchronizer struct {
	mu     sync.RWMutex
	states map[Kind]State
	log    *zap.Logger
}

// NewSynchronizer returns a Synchronizer with every kind in the empty state.
func NewSynchronizer() *Synchronizer {
	states := make(map[Kind]State, len(Kinds()))
	for _, k := range Kinds() {
		states[k] = State{}
	}
	return &Synchronizer{
		states: states,
		log:    zap.L().With(zap.String("component", "layers")),
	}
}

// Update re-runs extraction for every kind against the full message sequence
// and merges the results. For each kind: a non-empty extraction replaces the
// items wholesale and turns visibility on; an empty extraction clears a
// populated state exactly once and is a no-op on an already-empty state.
func (s *Synchronizer) Update(msgs []chat.Message) {
	for _, k := range Kinds() {
		s.UpdateKind(k, msgs)
	}
}

// UpdateKind re-runs extraction for a single kind. See Update.
func (s *Synchronizer) UpdateKind(kind Kind, msgs []chat.Message) {
	items := Extract(kind, msgs)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.states[kind]
	switch {
	case len(items) > 0:
		s.states[kind] = State{Items: items, Visible: true}
		s.log.Debug("layer populated",
			zap.String("kind", string(kind)),
			zap.Int("items", len(items)))
	case prev.Populated():
		s.states[kind] = State{}
		s.log.Debug("layer cleared", zap.String("kind", string(kind)))
	default:
		// Empty extraction over an empty state: leave it alone.
	}
}

// Clear forces a kind to the empty state regardless of what extraction would
// yield. Used for user-initiated dismissal of a layer.
func (s *Synchronizer) Clear(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[kind] = State{}
}

// SetVisible toggles a kind's visibility without touching its items, so a
// layer can be hidden and re-shown without re-deriving anything.
func (s *Synchronizer) SetVisible(kind Kind, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[kind]
	st.Visible = visible
	s.states[kind] = st
}

// State returns the current state for one kind.
func (s *Synchronizer) State(kind Kind) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[kind]
}

// Snapshot returns the current state of every kind.
func (s *Synchronizer) Snapshot() map[Kind]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Kind]State, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}
