// Package pawn implements the client-side predicted shadow world: a
// history of per-tick snapshots for every entity the local client owns
// ("pawns"), used to detect when an authoritative update disagrees
// with what was predicted.
package pawn

import (
	"github.com/google/go-cmp/cmp"

	"github.com/replisync/go-entity-replicator/pkg/world"
)

// EntityCopy is a frozen snapshot of one entity's full component set,
// keyed by wire kind id. It owns independent clones of every
// component, so later mutation of the live entity never reaches back
// into a buffered snapshot.
type EntityCopy struct {
	components map[uint16]world.Replica
}

// NewEntityCopy snapshots every component ref currently passed, in the
// shape a caller reads off world.Ref.ComponentOfKind for each of the
// entity's known component kinds.
func NewEntityCopy(live map[uint16]world.Replica) *EntityCopy {
	c := &EntityCopy{components: make(map[uint16]world.Replica, len(live))}
	for kindID, r := range live {
		c.components[kindID] = r.Clone()
	}
	return c
}

// Get returns the snapshotted component for kindID, if any.
func (c *EntityCopy) Get(kindID uint16) (world.Replica, bool) {
	r, ok := c.components[kindID]
	return r, ok
}

// Set overwrites (or adds) the snapshot for one kind, cloning r so the
// snapshot stays independent of the live component.
func (c *EntityCopy) Set(kindID uint16, r world.Replica) {
	c.components[kindID] = r.Clone()
}

// replicaComparer treats two Replicas as equal exactly when the
// application's own Equal says so, letting go-cmp walk the surrounding
// map structure while deferring to domain equality for the leaves.
var replicaComparer = cmp.Comparer(func(a, b world.Replica) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
})

// Equal reports whether two snapshots carry the same component kinds
// with equal state.
func (c *EntityCopy) Equal(other *EntityCopy) bool {
	if other == nil {
		return false
	}
	return cmp.Equal(c.components, other.components, replicaComparer)
}
