package entity

import (
	"github.com/replisync/go-entity-replicator/pkg/keygen"
	"github.com/replisync/go-entity-replicator/pkg/mask"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// WorldView is the slice of world.Record the entity manager needs to
// resolve an entity's current component list and a component's owner,
// kept narrow so tests can supply a fake without pulling in memdb.
type WorldView interface {
	ComponentsOf(e world.EntityID) ([]uint64, error)
	ComponentOwner(key uint64) (world.EntityID, world.Kind, error)
}

// Manager is the server per-connection entity manager: it owns one
// connection's view of entity/component scope, the outgoing action
// queue, and the bookkeeping needed to reconcile drops and acks
// against exactly what was written into each outgoing packet.
type Manager struct {
	connID uint64
	world  WorldView
	diff   *DiffHandler

	entityKeys    *keygen.Generator[uint16]
	componentKeys *keygen.Generator[uint16]

	entities            map[world.EntityID]*localEntityRecord
	entityByLocalKey    map[uint16]world.EntityID
	components          map[uint64]*localComponentRecord
	componentByLocalKey map[uint16]uint64

	queuedActions []Action

	sentActions           map[uint16][]Action
	sentUpdates           map[uint16]map[uint64]*mask.Mask
	lastUpdatePacketIndex map[uint64]uint16
	hasLastUpdate         map[uint64]bool

	delayedEntityDeletions    map[world.EntityID]struct{}
	delayedComponentDeletions map[uint64]struct{}

	deliveredPackets []uint16

	// pendingPop enforces the single-pending-pop contract: the packet
	// writer must resolve one popped action (Commit or Unpop) before
	// popping the next, so at most one action is ever "in limbo"
	// between the queue and a packet.
	pendingPop bool
}

// NewManager constructs an empty Manager for one connection. connID
// identifies this connection's window in diff, the global DiffHandler
// shared across every connection's manager.
func NewManager(connID uint64, wv WorldView, diff *DiffHandler) *Manager {
	return &Manager{
		connID:                    connID,
		world:                     wv,
		diff:                      diff,
		entityKeys:                keygen.New[uint16](),
		componentKeys:             keygen.New[uint16](),
		entities:                  make(map[world.EntityID]*localEntityRecord),
		entityByLocalKey:          make(map[uint16]world.EntityID),
		components:                make(map[uint64]*localComponentRecord),
		componentByLocalKey:       make(map[uint16]uint64),
		sentActions:               make(map[uint16][]Action),
		sentUpdates:               make(map[uint16]map[uint64]*mask.Mask),
		lastUpdatePacketIndex:     make(map[uint64]uint16),
		hasLastUpdate:             make(map[uint64]bool),
		delayedEntityDeletions:    make(map[world.EntityID]struct{}),
		delayedComponentDeletions: make(map[uint64]struct{}),
	}
}

// HasOutgoing reports whether any action awaits its first transmission.
func (m *Manager) HasOutgoing() bool {
	return len(m.queuedActions) > 0
}

func (m *Manager) initComponent(key uint64) *localComponentRecord {
	if rec, ok := m.components[key]; ok {
		return rec
	}
	rec := newLocalComponentRecord(m.componentKeys.Generate())
	m.components[key] = rec
	m.componentByLocalKey[rec.localKey] = key
	return rec
}

// SpawnEntity brings e into scope for this connection with its
// current component keys, enqueueing a SpawnEntity action. The
// component payload itself is resolved lazily at pop time from the
// live world record.
func (m *Manager) SpawnEntity(e world.EntityID, componentKeys []uint64) {
	if _, ok := m.entities[e]; ok {
		return
	}
	rec := newLocalEntityRecord(m.entityKeys.Generate())
	m.entities[e] = rec
	m.entityByLocalKey[rec.localKey] = e
	for _, key := range componentKeys {
		m.initComponent(key)
		rec.components[key] = struct{}{}
	}
	m.queuedActions = append(m.queuedActions, newSpawn(e))
}

// InScope reports whether e currently has a live record on this
// connection, i.e. it is replicating and not on its way out. Entities
// pending a delayed deletion still count as out of scope so the
// coordinator's scope sync does not re-spawn them.
func (m *Manager) InScope(e world.EntityID) bool {
	rec, ok := m.entities[e]
	if !ok || rec.status == Deleting {
		return false
	}
	_, delayed := m.delayedEntityDeletions[e]
	return !delayed
}

// ScopedEntities returns every entity InScope reports true for, in no
// particular order.
func (m *Manager) ScopedEntities() []world.EntityID {
	out := make([]world.EntityID, 0, len(m.entities))
	for e := range m.entities {
		if m.InScope(e) {
			out = append(out, e)
		}
	}
	return out
}

// DespawnEntity removes e from scope, per the state transitions in
// the entity lifecycle: a still-Creating entity is marked for delayed
// deletion and its despawn is enqueued once its spawn is acked, a
// Created entity is despawned immediately, and a Deleting entity is
// left alone.
func (m *Manager) DespawnEntity(e world.EntityID) {
	rec, ok := m.entities[e]
	if !ok {
		return
	}
	switch rec.status {
	case Creating:
		m.delayedEntityDeletions[e] = struct{}{}
	case Created:
		m.markDeletingAndEnqueueDespawn(e, rec)
	case Deleting:
	}
}

func (m *Manager) markDeletingAndEnqueueDespawn(e world.EntityID, rec *localEntityRecord) {
	rec.status = Deleting
	for key := range rec.components {
		if crec, ok := m.components[key]; ok {
			crec.status = Deleting
		}
	}
	m.queuedActions = append(m.queuedActions, newDespawn(e))
}

// InsertComponent adds key to entity e's scope. If e is not yet
// Created, the component rides along with the eventual spawn payload
// instead of getting its own action; if e is being deleted, the
// insert is a no-op.
func (m *Manager) InsertComponent(e world.EntityID, key uint64, kind world.Kind) {
	rec, ok := m.entities[e]
	if !ok {
		return
	}
	m.initComponent(key)
	rec.components[key] = struct{}{}
	switch rec.status {
	case Created:
		m.queuedActions = append(m.queuedActions, newInsert(e, key, kind))
	case Creating, Deleting:
	}
}

// RemoveComponent drops key from scope, symmetric to DespawnEntity.
func (m *Manager) RemoveComponent(key uint64) {
	rec, ok := m.components[key]
	if !ok {
		return
	}
	switch rec.status {
	case Creating:
		m.delayedComponentDeletions[key] = struct{}{}
	case Created:
		rec.status = Deleting
		m.queuedActions = append(m.queuedActions, newRemove(key))
	case Deleting:
	}
}

// OwnEntity assigns pawn prediction to e, if it is currently in scope.
func (m *Manager) OwnEntity(e world.EntityID) {
	if rec, ok := m.entities[e]; ok {
		rec.isPrediction = true
		m.queuedActions = append(m.queuedActions, newOwn(e))
	}
}

// DisownEntity revokes pawn prediction on e.
func (m *Manager) DisownEntity(e world.EntityID) {
	if rec, ok := m.entities[e]; ok {
		rec.isPrediction = false
		m.queuedActions = append(m.queuedActions, newDisown(e))
	}
}

// CollectUpdates enqueues UpdateComponent for every Created component
// whose diff window for this connection is non-empty. It is called
// once per tick before draining the queue; the mask itself is
// resolved at pop time so that anything dirtied between collection
// and serialization is still captured.
func (m *Manager) CollectUpdates() {
	for key, rec := range m.components {
		if rec.status != Created {
			continue
		}
		if m.diff.IsEmpty(key, m.connID) {
			continue
		}
		entityID, kind, err := m.world.ComponentOwner(key)
		if err != nil {
			continue
		}
		m.queuedActions = append(m.queuedActions, newUpdate(entityID, key, kind, nil))
	}
}

// Pop dequeues the next action for packetIndex, per the pop protocol:
// Spawn resolves its live component list and snapshots+clears each
// mask, Insert and Update snapshot+clear their own mask, and every
// popped action is recorded into sentActions for drop/ack reconciliation.
func (m *Manager) Pop(packetIndex uint16) (Action, bool) {
	if m.pendingPop {
		panic("entity: Pop called while a previous pop is still unresolved; call Commit or Unpop first")
	}
	if len(m.queuedActions) == 0 {
		return Action{}, false
	}
	a := m.queuedActions[0]
	m.queuedActions = m.queuedActions[1:]

	switch a.Type {
	case Spawn:
		keys, _ := m.world.ComponentsOf(a.Entity)
		refs := make([]ComponentRef, 0, len(keys))
		snaps := make([]*mask.Mask, 0, len(keys))
		for _, key := range keys {
			_, kind, err := m.world.ComponentOwner(key)
			if err != nil {
				continue
			}
			refs = append(refs, ComponentRef{Key: key, Kind: kind})
			snaps = append(snaps, m.diff.Snapshot(key, m.connID))
			m.diff.Clear(key, m.connID)
		}
		a.Components = refs
		a.poppedComponentMasks = snaps
	case Insert:
		a.poppedMask = m.diff.Snapshot(a.ComponentKey, m.connID)
		m.diff.Clear(a.ComponentKey, m.connID)
	case Update:
		snap := m.diff.Snapshot(a.ComponentKey, m.connID)
		m.diff.Clear(a.ComponentKey, m.connID)
		a.Mask = snap
		a.poppedMask = snap
		a.prevUpdateIndex, a.hadPrevUpdateIndex = m.lastUpdatePacketIndex[a.ComponentKey], m.hasLastUpdate[a.ComponentKey]
		m.lastUpdatePacketIndex[a.ComponentKey] = packetIndex
		m.hasLastUpdate[a.ComponentKey] = true
		if m.sentUpdates[packetIndex] == nil {
			m.sentUpdates[packetIndex] = make(map[uint64]*mask.Mask)
		}
		m.sentUpdates[packetIndex][a.ComponentKey] = snap.Clone()
	}

	m.sentActions[packetIndex] = append(m.sentActions[packetIndex], a)
	m.pendingPop = true
	return a, true
}

// Commit resolves the single pending pop without reverting it: the
// writer calls this once it has decided to keep the popped action in
// the packet, allowing the next Pop to proceed.
func (m *Manager) Commit() {
	m.pendingPop = false
}

// Unpop reverses the most recent Pop for packetIndex exactly: it is
// used by the packet writer when an action does not fit the MTU
// budget and must go back to the front of the queue for the next
// packet.
func (m *Manager) Unpop(packetIndex uint16, a Action) {
	m.pendingPop = false
	if list := m.sentActions[packetIndex]; len(list) > 0 {
		list = list[:len(list)-1]
		if len(list) == 0 {
			delete(m.sentActions, packetIndex)
		} else {
			m.sentActions[packetIndex] = list
		}
	}

	switch a.Type {
	case Spawn:
		for i, ref := range a.Components {
			m.diff.Or(ref.Key, m.connID, a.poppedComponentMasks[i])
		}
	case Insert:
		m.diff.Or(a.ComponentKey, m.connID, a.poppedMask)
	case Update:
		m.diff.Or(a.ComponentKey, m.connID, a.poppedMask)
		if byKey := m.sentUpdates[packetIndex]; byKey != nil {
			delete(byKey, a.ComponentKey)
			if len(byKey) == 0 {
				delete(m.sentUpdates, packetIndex)
			}
		}
		if a.hadPrevUpdateIndex {
			m.lastUpdatePacketIndex[a.ComponentKey] = a.prevUpdateIndex
		} else {
			delete(m.lastUpdatePacketIndex, a.ComponentKey)
			delete(m.hasLastUpdate, a.ComponentKey)
		}
	}

	m.queuedActions = append([]Action{a}, m.queuedActions...)
}

// NotifyPacketDropped reconciles a dropped packet: guaranteed actions
// are re-enqueued verbatim at the tail of the queue; an UpdateComponent
// folds its mask back into the live window, minus whatever bits a
// still-outstanding later update already covers.
func (m *Manager) NotifyPacketDropped(p uint16) {
	actions := m.sentActions[p]
	delete(m.sentActions, p)
	snapshots := m.sentUpdates[p]
	delete(m.sentUpdates, p)

	for _, a := range actions {
		if a.Type != Update {
			m.queuedActions = append(m.queuedActions, a)
			continue
		}
		newMask := snapshots[a.ComponentKey]
		if newMask == nil {
			continue
		}
		if last, had := m.lastUpdatePacketIndex[a.ComponentKey]; had && last != p {
			for i := p + 1; ; i++ {
				if laterMask, ok := m.sentUpdates[i][a.ComponentKey]; ok {
					newMask.Nand(laterMask)
				}
				if i == last {
					break
				}
			}
		}
		m.diff.Or(a.ComponentKey, m.connID, newMask)
	}
}

// NotifyPacketDelivered queues p for reconciliation on the next call
// to ProcessDeliveredPackets.
func (m *Manager) NotifyPacketDelivered(p uint16) {
	m.deliveredPackets = append(m.deliveredPackets, p)
}

// ProcessDeliveredPackets drains every packet queued by
// NotifyPacketDelivered and applies the corresponding status
// transitions and cleanup: Creating -> Created, destroyed records for
// acked deletes, and delayed deletes promoted to real delete actions.
func (m *Manager) ProcessDeliveredPackets() {
	packets := m.deliveredPackets
	m.deliveredPackets = nil

	for _, p := range packets {
		actions := m.sentActions[p]
		delete(m.sentActions, p)
		for _, a := range actions {
			m.processDeliveredAction(p, a)
		}
	}
}

func (m *Manager) processDeliveredAction(p uint16, a Action) {
	switch a.Type {
	case Spawn:
		m.processSpawnDelivered(a)
	case Insert:
		m.processInsertDelivered(a)
	case Despawn:
		m.processDespawnDelivered(a)
	case Remove:
		m.destroyComponent(a.ComponentKey)
	case Update:
		if byKey := m.sentUpdates[p]; byKey != nil {
			delete(byKey, a.ComponentKey)
			if len(byKey) == 0 {
				delete(m.sentUpdates, p)
			}
		}
	case Own, Disown:
	}
}

func (m *Manager) processSpawnDelivered(a Action) {
	rec, ok := m.entities[a.Entity]
	if !ok {
		return
	}
	if _, doomed := m.delayedEntityDeletions[a.Entity]; doomed {
		delete(m.delayedEntityDeletions, a.Entity)
		m.markDeletingAndEnqueueDespawn(a.Entity, rec)
		return
	}

	rec.status = Created
	spawned := make(map[uint64]struct{}, len(a.Components))
	for _, ref := range a.Components {
		spawned[ref.Key] = struct{}{}
		if crec, ok := m.components[ref.Key]; ok {
			crec.status = Created
		}
	}

	keys, err := m.world.ComponentsOf(a.Entity)
	if err != nil {
		return
	}
	for _, key := range keys {
		if _, already := spawned[key]; already {
			continue
		}
		crec, ok := m.components[key]
		if !ok || crec.status != Creating {
			continue
		}
		_, kind, err := m.world.ComponentOwner(key)
		if err != nil {
			continue
		}
		m.queuedActions = append(m.queuedActions, newInsert(a.Entity, key, kind))
	}
}

func (m *Manager) processInsertDelivered(a Action) {
	if _, doomed := m.delayedComponentDeletions[a.ComponentKey]; doomed {
		delete(m.delayedComponentDeletions, a.ComponentKey)
		if crec, ok := m.components[a.ComponentKey]; ok {
			crec.status = Deleting
		}
		m.queuedActions = append(m.queuedActions, newRemove(a.ComponentKey))
		return
	}
	if crec, ok := m.components[a.ComponentKey]; ok {
		crec.status = Created
	}
}

func (m *Manager) processDespawnDelivered(a Action) {
	rec, ok := m.entities[a.Entity]
	if !ok {
		return
	}
	m.entityKeys.Recycle(rec.localKey)
	delete(m.entityByLocalKey, rec.localKey)
	for key := range rec.components {
		m.destroyComponent(key)
	}
	delete(m.entities, a.Entity)
}

func (m *Manager) destroyComponent(key uint64) {
	rec, ok := m.components[key]
	if !ok {
		return
	}
	m.componentKeys.Recycle(rec.localKey)
	delete(m.componentByLocalKey, rec.localKey)
	delete(m.components, key)
}

// LocalEntityKey returns e's local key for this connection.
func (m *Manager) LocalEntityKey(e world.EntityID) (uint16, bool) {
	rec, ok := m.entities[e]
	if !ok {
		return 0, false
	}
	return rec.localKey, true
}

// LocalComponentKey returns key's local key for this connection.
func (m *Manager) LocalComponentKey(key uint64) (uint16, bool) {
	rec, ok := m.components[key]
	if !ok {
		return 0, false
	}
	return rec.localKey, true
}
