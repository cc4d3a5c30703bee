package client

import (
	"bytes"
	"fmt"

	"github.com/replisync/go-entity-replicator/pkg/cprint"
	"github.com/replisync/go-entity-replicator/pkg/pawn"
	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Manager applies the decoded action stream from the server to the
// local world, translating the connection-scoped local keys the wire
// format carries into the global world.EntityID/world.Kind pairs the
// local ECS understands, and keeps the pawn store in sync for any
// entity this client owns.
type Manager struct {
	world    world.Mut
	manifest world.Manifest
	pawns    *pawn.Store
	replay   Replayer

	entities   map[uint16]world.EntityID
	components map[uint16]componentLoc
	kindsOf    map[world.EntityID]map[uint16]world.Kind
}

type componentLoc struct {
	entity world.EntityID
	kind   world.Kind
}

// NewManager builds a client entity manager applying actions onto w,
// constructing replicas through manifest, and routing prediction
// mismatches to replay.
func NewManager(w world.Mut, manifest world.Manifest, pawns *pawn.Store, replay Replayer) *Manager {
	return &Manager{
		world:      w,
		manifest:   manifest,
		pawns:      pawns,
		replay:     replay,
		entities:   make(map[uint16]world.EntityID),
		components: make(map[uint16]componentLoc),
		kindsOf:    make(map[world.EntityID]map[uint16]world.Kind),
	}
}

// ApplyPacket decodes and applies an entire data payload. packetTick
// is the host tick the server attached to this packet, needed to look
// up the matching prediction-history slot for any Update targeting a
// pawn.
func (m *Manager) ApplyPacket(data []byte, packetTick uint16) error {
	actions, err := decodeActions(data, m.manifest)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if err := m.apply(a, packetTick); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) apply(a decodedAction, packetTick uint16) error {
	switch a.kind {
	case wire.ActionSpawn:
		return m.applySpawn(a)
	case wire.ActionDespawn:
		return m.applyDespawn(a)
	case wire.ActionOwn:
		return m.applyOwn(a)
	case wire.ActionDisown:
		return m.applyDisown(a)
	case wire.ActionInsert:
		return m.applyInsert(a)
	case wire.ActionRemove:
		return m.applyRemove(a)
	case wire.ActionUpdate:
		return m.applyUpdate(a, packetTick)
	default:
		return fmt.Errorf("client: unhandled action kind %v", a.kind)
	}
}

func (m *Manager) applySpawn(a decodedAction) error {
	if _, dup := m.entities[a.localEntity]; dup {
		cprint.ErrorPrintlnStdErr(fmt.Sprintf("client: duplicate local entity key %d, dropping spawn", a.localEntity))
		return nil
	}
	e := m.world.SpawnEntity()
	m.entities[a.localEntity] = e
	m.kindsOf[e] = make(map[uint16]world.Kind)

	for _, c := range a.components {
		if _, dup := m.components[c.localComponent]; dup {
			cprint.ErrorPrintlnStdErr(fmt.Sprintf("client: duplicate local component key %d, dropping component", c.localComponent))
			continue
		}
		m.world.InsertComponent(e, c.replica)
		m.components[c.localComponent] = componentLoc{entity: e, kind: c.kind}
		m.kindsOf[e][c.kind.ToU16()] = c.kind
	}
	return nil
}

func (m *Manager) applyDespawn(a decodedAction) error {
	e, ok := m.entities[a.localEntity]
	if !ok {
		return nil
	}
	m.world.DespawnEntity(e)
	m.pawns.UnassignPawn(e)
	delete(m.entities, a.localEntity)
	delete(m.kindsOf, e)
	for key, loc := range m.components {
		if loc.entity == e {
			delete(m.components, key)
		}
	}
	return nil
}

func (m *Manager) applyOwn(a decodedAction) error {
	e, ok := m.entities[a.localEntity]
	if !ok {
		return fmt.Errorf("client: OwnEntity for unknown local entity %d", a.localEntity)
	}
	m.pawns.AssignPawn(e, pawn.NewEntityCopy(m.liveComponents(e)))
	return nil
}

func (m *Manager) applyDisown(a decodedAction) error {
	e, ok := m.entities[a.localEntity]
	if !ok {
		return nil
	}
	m.pawns.UnassignPawn(e)
	return nil
}

func (m *Manager) applyInsert(a decodedAction) error {
	if _, dup := m.components[a.localComponent]; dup {
		cprint.ErrorPrintlnStdErr(fmt.Sprintf("client: duplicate local component key %d, dropping insert", a.localComponent))
		return nil
	}
	e, ok := m.entities[a.localEntity]
	if !ok {
		return fmt.Errorf("client: InsertComponent for unknown local entity %d", a.localEntity)
	}
	m.world.InsertComponent(e, a.replica)
	m.components[a.localComponent] = componentLoc{entity: e, kind: a.replicaKind}
	m.kindsOf[e][a.replicaKind.ToU16()] = a.replicaKind
	return nil
}

func (m *Manager) applyRemove(a decodedAction) error {
	loc, ok := m.components[a.localComponent]
	if !ok {
		return nil
	}
	m.world.RemoveComponentOfKind(loc.entity, loc.kind)
	delete(m.components, a.localComponent)
	delete(m.kindsOf[loc.entity], loc.kind.ToU16())
	return nil
}

func (m *Manager) applyUpdate(a decodedAction, packetTick uint16) error {
	loc, ok := m.components[a.localComponent]
	if !ok {
		return nil
	}
	if err := m.world.ComponentReadPartial(loc.entity, loc.kind, a.maskBytes, bytes.NewReader(a.payload)); err != nil {
		return fmt.Errorf("applying update to component %d: %w", a.localComponent, err)
	}

	if !m.pawns.IsPawn(loc.entity) {
		return nil
	}
	authoritative := pawn.NewEntityCopy(m.liveComponents(loc.entity))
	mismatch, ok := m.pawns.CheckUpdate(loc.entity, packetTick, authoritative)
	if ok && mismatch && m.replay != nil {
		m.replay.ReplayAfter(packetTick)
	}
	return nil
}

// liveComponents builds the kind->replica map for e from the live
// world, using the kinds this manager has itself installed on e.
func (m *Manager) liveComponents(e world.EntityID) map[uint16]world.Replica {
	live := make(map[uint16]world.Replica)
	for kindID, kind := range m.kindsOf[e] {
		if r, ok := m.world.ComponentOfKind(e, kind); ok {
			live[kindID] = r
		}
	}
	return live
}
