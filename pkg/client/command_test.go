package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replisync/go-entity-replicator/pkg/pawn"
)

func applyMove(state *pawn.EntityCopy, cmd Command) *pawn.EntityCopy {
	value := byte(0)
	if r, ok := state.Get(uint16(positionKind)); ok {
		value = r.(*fakeReplica).value
	}
	next := pawn.NewEntityCopy(nil)
	next.Set(uint16(positionKind), &fakeReplica{kind: positionKind, value: value + cmd.Payload[0]})
	return next
}

func TestCommandReceiverReplaysOnlyCommandsAfterTick(t *testing.T) {
	store := pawn.NewStore()
	store.AssignPawn(1, pawn.NewEntityCopy(nil))

	recv := NewCommandReceiver(10, 1, store, applyMove)
	recv.Record(Command{Tick: 101, Payload: []byte{1}})
	recv.Record(Command{Tick: 103, Payload: []byte{1}})
	recv.Record(Command{Tick: 105, Payload: []byte{1}})

	recv.ReplayAfter(103)

	shadow, ok := store.Shadow(1)
	require.True(t, ok)
	r, ok := shadow.Get(uint16(positionKind))
	require.True(t, ok)
	assert.Equal(t, byte(1), r.(*fakeReplica).value)
}

func TestCommandReceiverCapsHistory(t *testing.T) {
	store := pawn.NewStore()
	store.AssignPawn(1, pawn.NewEntityCopy(nil))
	recv := NewCommandReceiver(2, 1, store, applyMove)

	recv.Record(Command{Tick: 1, Payload: []byte{1}})
	recv.Record(Command{Tick: 2, Payload: []byte{1}})
	recv.Record(Command{Tick: 3, Payload: []byte{1}})

	assert.Len(t, recv.history, 2)
	assert.Equal(t, uint16(2), recv.history[0].Tick)
}
