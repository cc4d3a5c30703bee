package server

import (
	"bytes"
	"time"

	"github.com/replisync/go-entity-replicator/pkg/entity"
	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// UpdateScope reconciles every connected user's replication scope
// against current room membership: entities newly sharing a room with
// the user are spawned onto their connection, entities no longer
// sharing one are despawned. Call once per tick before SendAllUpdates.
func (s *Server) UpdateScope() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for user, conn := range s.connections {
		if conn.entities == nil {
			continue
		}
		inScope := make(map[world.EntityID]struct{})
		for _, e := range s.Rooms.EntitiesInScope(user) {
			inScope[e] = struct{}{}
			if conn.entities.InScope(e) {
				continue
			}
			keys, err := s.world.ComponentsOf(e)
			if err != nil {
				continue
			}
			conn.entities.SpawnEntity(e, keys)
		}
		for _, e := range conn.entities.ScopedEntities() {
			if _, ok := inScope[e]; !ok {
				conn.entities.DespawnEntity(e)
			}
		}
	}
}

// SendAllUpdates serializes every connected user's pending actions
// and dirty updates into framed, MTU-bounded Data packets, returning
// them keyed by user for the transport to send. Connections with
// nothing to say past their heartbeat interval get a Heartbeat packet
// instead. ref supplies the live component state backing the entity
// payloads.
func (s *Server) SendAllUpdates(ref world.Ref, now time.Time) map[UserKey][][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[UserKey][][]byte)
	for user, conn := range s.connections {
		if !conn.machine.Connected() {
			continue
		}
		packets := s.buildConnPacketsLocked(user, conn, ref)
		if len(packets) == 0 && now.Sub(conn.lastSent) >= s.cfg.HeartbeatInterval {
			if hb, ok := s.buildHeartbeatLocked(conn); ok {
				packets = append(packets, hb)
			}
		}
		if len(packets) > 0 {
			conn.markSent(now)
			out[user] = packets
		}
	}
	return out
}

func (s *Server) buildConnPacketsLocked(user UserKey, conn *connection, ref world.Ref) [][]byte {
	conn.entities.ProcessDeliveredPackets()
	conn.entities.CollectUpdates()

	var packets [][]byte
	for conn.entities.HasOutgoing() {
		seq, ok := conn.sendLedger.NextSequence()
		if !ok {
			return packets
		}
		body, count, err := s.writer.WritePacket(conn.entities, ref, seq)
		if err != nil {
			s.events = append(s.events, ErrorEvent{User: user, Err: err})
			return packets
		}
		if count == 0 {
			// First queued action alone exceeds the MTU; stop rather
			// than allocate sequence numbers for empty packets.
			return packets
		}
		packets = append(packets, s.frameDataLocked(conn, seq, wire.ManagerEntity, body))
	}

	for conn.messages.HasOutgoing() {
		seq, ok := conn.sendLedger.NextSequence()
		if !ok {
			return packets
		}
		body, n := popMessageSection(conn.messages, seq, entity.DefaultMTU)
		if n == 0 {
			return packets
		}
		packets = append(packets, s.frameDataLocked(conn, seq, wire.ManagerMessage, body))
	}
	return packets
}

// popMessageSection drains up to an MTU budget of outgoing messages
// into one encoded section, recording each guaranteed message against
// packetIndex for retransmission on drop. A message that fails to
// encode or does not fit is unpopped for the next packet.
func popMessageSection(mm *message.Manager, packetIndex uint16, mtu int) ([]byte, int) {
	var body bytes.Buffer
	count := 0
	for count < message.MaxMessagesPerSection {
		msg, guaranteed, ok := mm.Pop()
		if !ok {
			break
		}
		var scratch bytes.Buffer
		if err := msg.Write(&scratch); err != nil {
			mm.Unpop(msg, guaranteed)
			break
		}
		// 1 count prefix + 2 kind bytes per message.
		if 1+body.Len()+2+scratch.Len() > mtu {
			mm.Unpop(msg, guaranteed)
			break
		}
		kind := msg.Kind().ToU16()
		body.WriteByte(byte(kind >> 8))
		body.WriteByte(byte(kind))
		body.Write(scratch.Bytes())
		if guaranteed {
			mm.RecordSent(packetIndex, msg)
		}
		count++
	}

	out := make([]byte, 0, 1+body.Len())
	out = append(out, byte(count))
	out = append(out, body.Bytes()...)
	return out, count
}

// frameDataLocked wraps one manager section in the standard header.
func (s *Server) frameDataLocked(conn *connection, seq uint16, section wire.ManagerType, body []byte) []byte {
	ack, bitfield := conn.recvWindow.AckFields()
	out := wire.Header{
		Type:        wire.Data,
		Sequence:    seq,
		Ack:         ack,
		AckBitfield: bitfield,
		HostTick:    s.clock.LocalTick(),
	}.Write(nil)
	out = append(out, byte(section))
	return append(out, body...)
}

func (s *Server) buildHeartbeatLocked(conn *connection) ([]byte, bool) {
	seq, ok := conn.sendLedger.NextSequence()
	if !ok {
		return nil, false
	}
	ack, bitfield := conn.recvWindow.AckFields()
	return wire.Header{
		Type:        wire.Heartbeat,
		Sequence:    seq,
		Ack:         ack,
		AckBitfield: bitfield,
		HostTick:    s.clock.LocalTick(),
	}.Write(nil), true
}
