package pawn

import (
	"github.com/replisync/go-entity-replicator/pkg/seqbuf"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// HistorySize is the depth of the per-pawn prediction buffer: the
// client can tolerate a correction arriving up to this many ticks
// late before the buffered snapshot it needs has already been evicted.
const HistorySize = 64

// entry is one pawn's shadow state: the live snapshot clients mutate
// when applying local commands, plus a ring of historical snapshots
// keyed by the host tick they were taken at.
type entry struct {
	shadow  *EntityCopy
	history *seqbuf.Buffer[*EntityCopy]
}

// Store tracks every entity currently assigned as a pawn to this
// client.
type Store struct {
	pawns map[world.EntityID]*entry
}

// NewStore builds an empty pawn store.
func NewStore() *Store {
	return &Store{pawns: make(map[world.EntityID]*entry)}
}

// IsPawn reports whether e is currently assigned as a pawn.
func (s *Store) IsPawn(e world.EntityID) bool {
	_, ok := s.pawns[e]
	return ok
}

// AssignPawn clones initial into e's shadow state and allocates a
// fresh prediction history. Re-assigning an already-assigned pawn
// replaces both.
func (s *Store) AssignPawn(e world.EntityID, initial *EntityCopy) {
	s.pawns[e] = &entry{
		shadow:  NewEntityCopy(initial.components),
		history: seqbuf.New[*EntityCopy](HistorySize),
	}
}

// UnassignPawn drops both the shadow state and the prediction history
// for e. A no-op if e was never a pawn.
func (s *Store) UnassignPawn(e world.EntityID) {
	delete(s.pawns, e)
}

// Shadow returns e's current predicted state, or ok=false if e is not
// a pawn.
func (s *Store) Shadow(e world.EntityID) (*EntityCopy, bool) {
	p, ok := s.pawns[e]
	if !ok {
		return nil, false
	}
	return p.shadow, true
}

// SetShadow overwrites e's predicted state directly, used by command
// replay after a correction to fold a sequence of re-applied commands
// back into the shadow without going through SnapshotTick. A no-op if
// e is not a pawn.
func (s *Store) SetShadow(e world.EntityID, state *EntityCopy) {
	p, ok := s.pawns[e]
	if !ok {
		return
	}
	p.shadow = state
}

// SnapshotTick records e's current shadow state into its history at
// the given host tick. A no-op if e is not a pawn.
func (s *Store) SnapshotTick(e world.EntityID, tick uint16) {
	p, ok := s.pawns[e]
	if !ok {
		return
	}
	p.history.Insert(tick, NewEntityCopy(p.shadow.components))
}

// CheckUpdate compares an incoming authoritative snapshot for e,
// generated by the server at packetTick, against what this client had
// predicted at that same tick. ok is false when e is not a pawn or the
// buffered tick has already been evicted -- callers should treat that
// as "nothing to check" rather than a mismatch. When the comparison
// succeeds, history entries up to and including packetTick are
// forgotten: everything older is now confirmed correct.
func (s *Store) CheckUpdate(e world.EntityID, packetTick uint16, authoritative *EntityCopy) (mismatch bool, ok bool) {
	p, present := s.pawns[e]
	if !present {
		return false, false
	}
	predicted, found := p.history.Get(packetTick)
	if !found {
		return false, false
	}
	if predicted.Equal(authoritative) {
		p.history.RemoveUntil(packetTick)
		p.shadow = authoritative
		return false, true
	}
	p.shadow = authoritative
	p.history.RemoveUntil(packetTick)
	return true, true
}
