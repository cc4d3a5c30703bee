// Package world declares the small set of operations the entity
// manager needs from the application's ECS storage engine, and
// implements WorldRecord, the server-global bookkeeping of which
// components belong to which entities.
//
// The concrete world/ECS storage and the concrete component schema are
// external collaborators: this package only names the contract they
// must satisfy.
package world

import (
	"io"

	"github.com/replisync/go-entity-replicator/pkg/mask"
)

// EntityID names an entity in the authoritative, server-global world.
// The concrete allocation scheme belongs to the application's ECS;
// this engine only ever compares ids for equality and uses them as map
// keys.
type EntityID uint64

// Kind names the type-id of a component or message within the
// application's schema (ProtocolType::Kind). Concrete kinds are
// supplied by the application; the engine only needs the wire codec.
type Kind interface {
	// ToU16 returns the wire id for this kind.
	ToU16() uint16
}

// Replica is a concrete component or message instance.
type Replica interface {
	Kind() Kind
	// Write serializes the full replica state.
	Write(w io.Writer) error
	// WritePartial serializes only the properties with a set bit in m,
	// in declared property order, mirroring the layout the entity
	// manager's diff mask addresses.
	WritePartial(w io.Writer, m *mask.Mask) error
	// Clone returns an independent copy.
	Clone() Replica
	// Equal reports whether two replicas carry the same state. Used by
	// the pawn prediction-error check.
	Equal(other Replica) bool
}

// Ref is the read-only view of the authoritative world.
type Ref interface {
	HasEntity(e EntityID) bool
	Entities() []EntityID
	HasComponentOfKind(e EntityID, k Kind) bool
	// ComponentOfKind returns the live component and true, or false if
	// the entity carries no component of that kind.
	ComponentOfKind(e EntityID, k Kind) (Replica, bool)
}

// Mut is the mutable view of the authoritative world, used by
// application code driving spawns/despawns and by the client when
// applying incoming actions.
type Mut interface {
	Ref
	SpawnEntity() EntityID
	DespawnEntity(e EntityID)
	InsertComponent(e EntityID, c Replica)
	RemoveComponentOfKind(e EntityID, k Kind)
	// ComponentReadPartial applies a partial read under the given mask
	// bytes to the existing component of kind k on entity e.
	ComponentReadPartial(e EntityID, k Kind, maskBytes []byte, r io.Reader) error
	// MirrorComponents copies every component from src onto dst,
	// replacing whatever dst already carries. No code in this module
	// calls it; pawn shadows are kept as pawn.EntityCopy values.
	MirrorComponents(dst, src EntityID)
}

// Manifest maps a wire kind id to/from a live Replica.
type Manifest interface {
	// CreateReplica constructs a new Replica of the given kind by
	// reading its self-delimited payload from r.
	CreateReplica(kind Kind, r io.Reader) (Replica, error)
	KindOf(p Replica) Kind
	// KindByID resolves a wire id back to a Kind, or ok=false if the
	// id is unknown (a protocol violation -- the caller should drop
	// the packet and log a warning, never treat this as fatal).
	KindByID(id uint16) (Kind, bool)
}
