// Package entity implements the server per-connection entity manager:
// it turns mutations of the authoritative world into an ordered
// stream of entity/component actions, tracks which actions and diff
// masks were written into which outgoing packet, and reconciles drops
// and duplicate/out-of-order delivery against that record.
package entity

import (
	"fmt"

	"github.com/replisync/go-entity-replicator/pkg/mask"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// ActionType names one of the entity/component action variants,
// following the same named-value-type idiom the reconciler uses for
// its crud.Op constants rather than a plain iota enum, since actions
// are logged and compared by name in tests and error messages.
type ActionType struct {
	name string
}

func (t ActionType) String() string { return t.name }

var (
	Spawn   = ActionType{"SpawnEntity"}
	Despawn = ActionType{"DespawnEntity"}
	Own     = ActionType{"OwnEntity"}
	Disown  = ActionType{"DisownEntity"}
	Insert  = ActionType{"InsertComponent"}
	Remove  = ActionType{"RemoveComponent"}
	Update  = ActionType{"UpdateComponent"}
)

// ComponentRef names one component slot on an entity for the purposes
// of a SpawnEntity payload: its global key and wire kind.
type ComponentRef struct {
	Key  uint64
	Kind world.Kind
}

// Action is the tagged union of everything the entity manager can
// write to the outgoing action queue. Only the fields relevant to
// Type are meaningful; which fields those are is documented per
// constructor below.
type Action struct {
	Type         ActionType
	Entity       world.EntityID
	ComponentKey uint64
	Kind         world.Kind
	Components   []ComponentRef // Spawn only
	Mask         *mask.Mask     // Update only: the mask snapshotted at pop time (nil while queued)

	// Pop/unpop bookkeeping, populated by Manager.popAction and
	// consumed by Manager.Unpop to restore exactly the state that was
	// true before the pop. These are never part of the wire payload.
	poppedComponentMasks []*mask.Mask // Spawn: masks snapshotted per component, in Components order
	poppedMask           *mask.Mask   // Insert/Update: the mask snapshotted at pop time
	prevUpdateIndex      uint16
	hadPrevUpdateIndex   bool
}

// Guaranteed reports whether this action's variant is guaranteed
// (requeued verbatim on drop) as opposed to UpdateComponent, the only
// variant whose drop handling folds the loss back into a live mask
// instead of resending the exact payload.
func (a Action) Guaranteed() bool {
	return a.Type != Update
}

func newSpawn(e world.EntityID) Action {
	return Action{Type: Spawn, Entity: e}
}

func newDespawn(e world.EntityID) Action {
	return Action{Type: Despawn, Entity: e}
}

func newOwn(e world.EntityID) Action {
	return Action{Type: Own, Entity: e}
}

func newDisown(e world.EntityID) Action {
	return Action{Type: Disown, Entity: e}
}

func newInsert(e world.EntityID, key uint64, kind world.Kind) Action {
	return Action{Type: Insert, Entity: e, ComponentKey: key, Kind: kind}
}

func newRemove(key uint64) Action {
	return Action{Type: Remove, ComponentKey: key}
}

func newUpdate(e world.EntityID, key uint64, kind world.Kind, m *mask.Mask) Action {
	return Action{Type: Update, Entity: e, ComponentKey: key, Kind: kind, Mask: m}
}

// ActionError reports a failure applying or reconciling a specific
// action, grounded on the reconciler's crud.ActionError shape.
type ActionError struct {
	ActionType ActionType
	Entity     world.EntityID
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("entity: %s on entity %d failed: %v", e.ActionType, e.Entity, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
