package client

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/pawn"
	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

func newTestRouter() (*Router, *fakeWorld, *message.Manager) {
	w := newFakeWorld()
	msgs := message.NewManager()
	entities := NewManager(w, fakeManifest{}, pawn.NewStore(), nil)
	return NewRouter(entities, msgs, fakeManifest{}), w, msgs
}

func TestRouteEntitySectionAppliesActions(t *testing.T) {
	r, w, _ := newTestRouter()

	payload := append([]byte{byte(wire.ManagerEntity)}, spawnPayload(1, [3]uint16{1, 1, 42})...)
	require.NoError(t, r.Route(payload, 0))
	assert.Len(t, w.Entities(), 1)
}

func TestRouteMessageSectionEnqueuesIncoming(t *testing.T) {
	r, _, msgs := newTestRouter()

	section, err := WriteMessagePayload([]world.Replica{&fakeReplica{kind: positionKind, value: 9}})
	require.NoError(t, err)
	require.NoError(t, r.Route(section, 0))

	msg, ok := msgs.PopIncoming()
	require.True(t, ok)
	assert.Equal(t, byte(9), msg.(*fakeReplica).value)
}

func TestRouteRejectsCommandSection(t *testing.T) {
	r, _, _ := newTestRouter()

	payload, err := WriteCommandPayload([]wire.Command{{Tick: 1, Payload: []byte("x")}})
	require.NoError(t, err)
	assert.Error(t, r.Route(payload, 0))
}

func TestRouteRejectsEmptyPayload(t *testing.T) {
	r, _, _ := newTestRouter()
	assert.Error(t, r.Route(nil, 0))
}

func TestWriteCommandPayloadRoundTripsThroughWire(t *testing.T) {
	payload, err := WriteCommandPayload([]wire.Command{{Tick: 103, Payload: []byte("move +1")}})
	require.NoError(t, err)
	require.Equal(t, byte(wire.ManagerCommand), payload[0])

	cmds, err := wire.ReadCommandSection(bytes.NewReader(payload[1:]))
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, uint16(103), cmds[0].Tick)
	assert.Equal(t, []byte("move +1"), cmds[0].Payload)
}
