package client

import (
	"bytes"
	"fmt"

	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Router dispatches a deframed Data payload to the manager its
// leading section tag names: entity sections to the entity Manager,
// message sections to the message queue. Command sections only travel
// client to server, so one arriving here is a protocol violation the
// caller drops and logs.
type Router struct {
	entities *Manager
	messages *message.Manager
	manifest world.Manifest
}

// NewRouter wires a Router over the client's entity and message
// managers.
func NewRouter(entities *Manager, messages *message.Manager, manifest world.Manifest) *Router {
	return &Router{entities: entities, messages: messages, manifest: manifest}
}

// Route applies one Data payload. packetTick is the HostTick from the
// packet's standard header, used for pawn prediction checks.
func (r *Router) Route(payload []byte, packetTick uint16) error {
	if len(payload) < 1 {
		return fmt.Errorf("client: empty data payload")
	}
	switch wire.ManagerType(payload[0]) {
	case wire.ManagerEntity:
		return r.entities.ApplyPacket(payload[1:], packetTick)
	case wire.ManagerMessage:
		msgs, err := message.ReadSection(bytes.NewReader(payload[1:]), r.manifest)
		if err != nil {
			return fmt.Errorf("client: decoding message section: %w", err)
		}
		for _, msg := range msgs {
			r.messages.EnqueueIncoming(msg)
		}
		return nil
	default:
		return fmt.Errorf("client: unexpected manager section %s", wire.ManagerType(payload[0]))
	}
}

// WriteCommandPayload builds the Data payload carrying locally-issued
// commands to the server.
func WriteCommandPayload(cmds []wire.Command) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(wire.ManagerCommand))
	if err := wire.WriteCommandSection(&buf, cmds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteMessagePayload builds the Data payload carrying application
// messages to the server.
func WriteMessagePayload(msgs []world.Replica) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(wire.ManagerMessage))
	if err := message.WriteSection(&buf, msgs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
