package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replisync/go-entity-replicator/pkg/pawn"
)

func u16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func spawnPayload(localEntity uint16, components ...[3]uint16) []byte {
	var buf []byte
	buf = append(buf, 1) // action count
	buf = append(buf, 0) // wire.ActionSpawn
	buf = append(buf, u16(localEntity)...)
	buf = append(buf, byte(len(components)))
	for _, c := range components {
		kindID, localComponent, value := c[0], c[1], c[2]
		buf = append(buf, u16(kindID)...)
		buf = append(buf, u16(localComponent)...)
		buf = append(buf, byte(value))
	}
	return buf
}

func insertPayload(localEntity, kindID, localComponent uint16, value byte) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 4) // wire.ActionInsert
	buf = append(buf, u16(localEntity)...)
	buf = append(buf, u16(kindID)...)
	buf = append(buf, u16(localComponent)...)
	buf = append(buf, value)
	return buf
}

func updatePayload(localComponent uint16, value byte) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 5) // wire.ActionUpdate
	buf = append(buf, u16(localComponent)...)
	buf = append(buf, 1, 0x01) // mask: 1 byte, bit 0 set
	buf = append(buf, 1, value)
	return buf
}

func removePayload(localComponent uint16) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 6) // wire.ActionRemove
	buf = append(buf, u16(localComponent)...)
	return buf
}

func despawnPayload(localEntity uint16) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 1) // wire.ActionDespawn
	buf = append(buf, u16(localEntity)...)
	return buf
}

func ownPayload(localEntity uint16) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 2) // wire.ActionOwn
	buf = append(buf, u16(localEntity)...)
	return buf
}

func disownPayload(localEntity uint16) []byte {
	var buf []byte
	buf = append(buf, 1)
	buf = append(buf, 3) // wire.ActionDisown
	buf = append(buf, u16(localEntity)...)
	return buf
}

func newTestManager() (*Manager, *fakeWorld) {
	w := newFakeWorld()
	m := NewManager(w, fakeManifest{}, pawn.NewStore(), nil)
	return m, w
}

func TestApplySpawnCreatesEntityAndComponent(t *testing.T) {
	m, w := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 42}), 0))

	e, ok := m.entities[1]
	require.True(t, ok)
	r, ok := w.ComponentOfKind(e, positionKind)
	require.True(t, ok)
	assert.Equal(t, byte(42), r.(*fakeReplica).value)
}

func TestApplySpawnDuplicateLocalEntityDropped(t *testing.T) {
	m, w := newTestManager()
	payload := spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1})
	require.NoError(t, m.ApplyPacket(payload, 0))
	require.NoError(t, m.ApplyPacket(payload, 0))

	assert.Len(t, w.entities, 1)
}

func TestApplyInsertAddsComponentToExistingEntity(t *testing.T) {
	m, w := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	e := m.entities[1]
	w.RemoveComponentOfKind(e, positionKind) // make room to re-insert distinctly
	require.NoError(t, m.ApplyPacket(insertPayload(1, uint16(positionKind), 20, 7), 0))

	r, ok := w.ComponentOfKind(e, positionKind)
	require.True(t, ok)
	assert.Equal(t, byte(7), r.(*fakeReplica).value)
}

func TestApplyUpdateMutatesComponent(t *testing.T) {
	m, w := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	require.NoError(t, m.ApplyPacket(updatePayload(10, 99), 0))

	e := m.entities[1]
	r, _ := w.ComponentOfKind(e, positionKind)
	assert.Equal(t, byte(99), r.(*fakeReplica).value)
}

func TestApplyRemoveDropsComponent(t *testing.T) {
	m, w := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	require.NoError(t, m.ApplyPacket(removePayload(10), 0))

	e := m.entities[1]
	assert.False(t, w.HasComponentOfKind(e, positionKind))
	_, stillMapped := m.components[10]
	assert.False(t, stillMapped)
}

func TestApplyDespawnRemovesEntityAndComponents(t *testing.T) {
	m, w := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	e := m.entities[1]
	require.NoError(t, m.ApplyPacket(despawnPayload(1), 0))

	assert.False(t, w.HasEntity(e))
	_, ok := m.entities[1]
	assert.False(t, ok)
	_, ok = m.components[10]
	assert.False(t, ok)
}

func TestApplyOwnAssignsPawnWithLiveState(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 42}), 0))
	require.NoError(t, m.ApplyPacket(ownPayload(1), 0))

	e := m.entities[1]
	require.True(t, m.pawns.IsPawn(e))
	shadow, ok := m.pawns.Shadow(e)
	require.True(t, ok)
	got, ok := shadow.Get(uint16(positionKind))
	require.True(t, ok)
	assert.Equal(t, byte(42), got.(*fakeReplica).value)
}

func TestApplyDisownDropsPawn(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	require.NoError(t, m.ApplyPacket(ownPayload(1), 0))
	require.NoError(t, m.ApplyPacket(disownPayload(1), 0))

	e := m.entities[1]
	assert.False(t, m.pawns.IsPawn(e))
}

type recordingReplayer struct {
	calledWith []uint16
}

func (r *recordingReplayer) ReplayAfter(tick uint16) {
	r.calledWith = append(r.calledWith, tick)
}

func TestApplyUpdateOnPawnMatchingPredictionDoesNotReplay(t *testing.T) {
	w := newFakeWorld()
	replay := &recordingReplayer{}
	m := NewManager(w, fakeManifest{}, pawn.NewStore(), replay)

	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 1}), 0))
	require.NoError(t, m.ApplyPacket(ownPayload(1), 0))

	e := m.entities[1]
	m.pawns.SnapshotTick(e, 5)

	require.NoError(t, m.ApplyPacket(updatePayload(10, 1), 5))
	assert.Empty(t, replay.calledWith)
}

func TestApplyUpdateOnPawnDivergingPredictionReplays(t *testing.T) {
	w := newFakeWorld()
	replay := &recordingReplayer{}
	m := NewManager(w, fakeManifest{}, pawn.NewStore(), replay)

	require.NoError(t, m.ApplyPacket(spawnPayload(1, [3]uint16{uint16(positionKind), 10, 0}), 0))
	require.NoError(t, m.ApplyPacket(ownPayload(1), 0))

	e := m.entities[1]
	// client predicted value=1 at tick 103 after a local command.
	predicted := pawn.NewEntityCopy(nil)
	predicted.Set(uint16(positionKind), &fakeReplica{kind: positionKind, value: 1})
	m.pawns.SetShadow(e, predicted)
	m.pawns.SnapshotTick(e, 103)

	// server rejects the move: authoritative update at tick 103 says 0.
	require.NoError(t, m.ApplyPacket(updatePayload(10, 0), 103))
	assert.Equal(t, []uint16{103}, replay.calledWith)
}
