package entity

import (
	"bytes"
	"fmt"

	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// wire ids for each action type, aliased for brevity; see pkg/wire
// for the shared definition used by both the writer and the client
// decoder.
const (
	wireSpawn   = byte(wire.ActionSpawn)
	wireDespawn = byte(wire.ActionDespawn)
	wireOwn     = byte(wire.ActionOwn)
	wireDisown  = byte(wire.ActionDisown)
	wireInsert  = byte(wire.ActionInsert)
	wireUpdate  = byte(wire.ActionUpdate)
	wireRemove  = byte(wire.ActionRemove)
)

func wireByte(t ActionType) byte {
	switch t {
	case Spawn:
		return wireSpawn
	case Despawn:
		return wireDespawn
	case Own:
		return wireOwn
	case Disown:
		return wireDisown
	case Insert:
		return wireInsert
	case Update:
		return wireUpdate
	case Remove:
		return wireRemove
	default:
		panic("entity: unknown action type")
	}
}

// DefaultMTU is the packet size budget the writer targets, leaving
// headroom under a typical 576-byte path MTU for the standard header
// and any outer transport framing.
const DefaultMTU = 508

// MaxActionsPerPacket is the wire-level cap: the action count prefix
// is a single byte.
const MaxActionsPerPacket = 255

// Writer packs queued actions from a Manager into MTU-bounded data
// payloads, unpopping whatever does not fit so it is retried in the
// next packet.
type Writer struct {
	mtu int
}

// NewWriter builds a Writer with the given MTU budget for the data
// payload (excluding the standard header). A non-positive value
// selects DefaultMTU.
func NewWriter(mtu int) *Writer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Writer{mtu: mtu}
}

// WritePacket drains m's queue into a single data payload:
// entity_action_count:u8 followed by each action's encoding. ref
// supplies the live component state backing Spawn/Insert/Update
// payloads.
func (w *Writer) WritePacket(m *Manager, ref world.Ref, packetIndex uint16) ([]byte, int, error) {
	var body bytes.Buffer
	count := 0

	for count < MaxActionsPerPacket {
		a, ok := m.Pop(packetIndex)
		if !ok {
			break
		}

		var scratch bytes.Buffer
		if err := writeAction(&scratch, ref, m, a); err != nil {
			m.Unpop(packetIndex, a)
			return nil, 0, fmt.Errorf("entity: encoding %s: %w", a.Type, err)
		}

		// the one-byte action count always precedes the body.
		if 1+body.Len()+scratch.Len() > w.mtu {
			m.Unpop(packetIndex, a)
			break
		}
		body.Write(scratch.Bytes())
		m.Commit()
		count++
	}

	out := make([]byte, 0, 1+body.Len())
	out = append(out, byte(count))
	out = append(out, body.Bytes()...)
	return out, count, nil
}

func writeAction(buf *bytes.Buffer, ref world.Ref, m *Manager, a Action) error {
	switch a.Type {
	case Spawn:
		return writeSpawn(buf, ref, m, a)
	case Despawn:
		buf.WriteByte(wireDespawn)
		return writeLocalEntity(buf, m, a.Entity)
	case Own:
		buf.WriteByte(wireOwn)
		return writeLocalEntity(buf, m, a.Entity)
	case Disown:
		buf.WriteByte(wireDisown)
		return writeLocalEntity(buf, m, a.Entity)
	case Insert:
		return writeInsert(buf, ref, m, a)
	case Remove:
		buf.WriteByte(wireRemove)
		return writeLocalComponent(buf, m, a.ComponentKey)
	case Update:
		return writeUpdate(buf, ref, m, a)
	default:
		return fmt.Errorf("unhandled action type %s", a.Type)
	}
}

func writeLocalEntity(buf *bytes.Buffer, m *Manager, e world.EntityID) error {
	local, ok := m.LocalEntityKey(e)
	if !ok {
		return fmt.Errorf("no local key for entity %d", e)
	}
	writeU16(buf, local)
	return nil
}

func writeLocalComponent(buf *bytes.Buffer, m *Manager, key uint64) error {
	local, ok := m.LocalComponentKey(key)
	if !ok {
		return fmt.Errorf("no local key for component %d", key)
	}
	writeU16(buf, local)
	return nil
}

func writeSpawn(buf *bytes.Buffer, ref world.Ref, m *Manager, a Action) error {
	buf.WriteByte(wireSpawn)
	if err := writeLocalEntity(buf, m, a.Entity); err != nil {
		return err
	}
	buf.WriteByte(byte(len(a.Components)))
	for _, c := range a.Components {
		writeU16(buf, c.Kind.ToU16())
		if err := writeLocalComponent(buf, m, c.Key); err != nil {
			return err
		}
		replica, ok := ref.ComponentOfKind(a.Entity, c.Kind)
		if !ok {
			return fmt.Errorf("component %d vanished from world between pop and write", c.Key)
		}
		if err := replica.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeInsert(buf *bytes.Buffer, ref world.Ref, m *Manager, a Action) error {
	buf.WriteByte(wireInsert)
	if err := writeLocalEntity(buf, m, a.Entity); err != nil {
		return err
	}
	writeU16(buf, a.Kind.ToU16())
	if err := writeLocalComponent(buf, m, a.ComponentKey); err != nil {
		return err
	}
	replica, ok := ref.ComponentOfKind(a.Entity, a.Kind)
	if !ok {
		return fmt.Errorf("component %d vanished from world between pop and write", a.ComponentKey)
	}
	return replica.Write(buf)
}

func writeUpdate(buf *bytes.Buffer, ref world.Ref, m *Manager, a Action) error {
	buf.WriteByte(wireUpdate)
	if err := writeLocalComponent(buf, m, a.ComponentKey); err != nil {
		return err
	}
	buf.Write(a.Mask.Write(nil))

	replica, ok := ref.ComponentOfKind(a.Entity, a.Kind)
	if !ok {
		return fmt.Errorf("component %d vanished from world between pop and write", a.ComponentKey)
	}
	var payload bytes.Buffer
	if err := replica.WritePartial(&payload, a.Mask); err != nil {
		return err
	}
	if payload.Len() > 255 {
		return fmt.Errorf("update payload for component %d exceeds 255 bytes", a.ComponentKey)
	}
	buf.WriteByte(byte(payload.Len()))
	buf.Write(payload.Bytes())
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}
