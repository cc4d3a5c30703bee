package server

import (
	"bytes"
	"time"

	"github.com/replisync/go-entity-replicator/pkg/cprint"
	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/wire"
)

// connNotifiable fans a packet's delivery verdict out to every
// per-connection manager that recorded state against it.
type connNotifiable struct {
	conn *connection
}

func (n connNotifiable) NotifyPacketDelivered(index uint16) {
	if n.conn.messages != nil {
		n.conn.messages.NotifyPacketDelivered(index)
	}
	if n.conn.entities != nil {
		n.conn.entities.NotifyPacketDelivered(index)
	}
}

func (n connNotifiable) NotifyPacketDropped(index uint16) {
	if n.conn.messages != nil {
		n.conn.messages.NotifyPacketDropped(index)
	}
	if n.conn.entities != nil {
		n.conn.entities.NotifyPacketDropped(index)
	}
}

// Receive processes one inbound post-handshake datagram from addr.
// The returned reply, when non-nil, is a packet the transport should
// send straight back (currently only a Pong answering a Ping).
// Malformed packets and packets from unknown addresses are dropped
// with a warning; per the error model they never tear the connection
// down.
func (s *Server) Receive(addr string, datagram []byte, now time.Time) (reply []byte) {
	hdr, payload, err := wire.ReadHeader(datagram)
	if err != nil {
		cprint.ErrorPrintlnStdErr("server: dropping packet from", addr+":", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byAddr[addr]
	if !ok {
		cprint.ErrorPrintlnStdErr("server: dropping", hdr.Type.String(), "packet from unknown address", addr)
		return nil
	}
	conn := s.connections[user]
	if !conn.machine.Connected() {
		cprint.ErrorPrintlnStdErr("server: dropping", hdr.Type.String(), "packet from", addr, "before handshake completed")
		return nil
	}

	conn.markHeard(now)
	conn.recvWindow.Record(hdr.Sequence)
	conn.sendLedger.Process(hdr.Ack, hdr.AckBitfield, connNotifiable{conn: conn})

	switch hdr.Type {
	case wire.Heartbeat:
		// Liveness only; markHeard above is the whole effect.
	case wire.Ping:
		return s.buildPongLocked(conn, payload, now)
	case wire.Pong:
		if len(payload) >= 2 {
			token := uint16(payload[0])<<8 | uint16(payload[1])
			s.clock.RecordPong(token, now)
		}
	case wire.Data:
		s.receiveDataLocked(user, conn, hdr, payload)
	default:
		cprint.ErrorPrintlnStdErr("server: dropping unexpected", hdr.Type.String(), "packet from", addr)
	}
	return nil
}

// receiveDataLocked routes a Data payload's section to command or
// message ingress. Entity sections only travel server to client, so
// one arriving here is a protocol violation.
func (s *Server) receiveDataLocked(user UserKey, conn *connection, hdr wire.Header, payload []byte) {
	if len(payload) < 1 {
		cprint.ErrorPrintlnStdErr("server: dropping empty data payload from", conn.addr)
		return
	}
	switch wire.ManagerType(payload[0]) {
	case wire.ManagerCommand:
		cmds, err := wire.ReadCommandSection(bytes.NewReader(payload[1:]))
		if err != nil {
			cprint.ErrorPrintlnStdErr("server: dropping command section from", conn.addr+":", err)
			return
		}
		for _, c := range cmds {
			s.events = append(s.events, CommandEvent{User: user, Tick: c.Tick, Cmd: c.Payload})
		}
	case wire.ManagerMessage:
		msgs, err := message.ReadSection(bytes.NewReader(payload[1:]), s.manifest)
		if err != nil {
			cprint.ErrorPrintlnStdErr("server: dropping message section from", conn.addr+":", err)
			return
		}
		for _, msg := range msgs {
			conn.messages.EnqueueIncoming(msg)
			s.events = append(s.events, MessageEvent{User: user, Msg: msg})
		}
	default:
		cprint.ErrorPrintlnStdErr("server: dropping data payload with unexpected",
			wire.ManagerType(payload[0]).String(), "section from", conn.addr)
	}
}

// buildPongLocked frames an immediate Pong echoing the ping token.
func (s *Server) buildPongLocked(conn *connection, pingPayload []byte, now time.Time) []byte {
	if len(pingPayload) < 2 {
		cprint.ErrorPrintlnStdErr("server: dropping truncated ping from", conn.addr)
		return nil
	}
	seq, ok := conn.sendLedger.NextSequence()
	if !ok {
		return nil
	}
	ack, bitfield := conn.recvWindow.AckFields()
	out := wire.Header{
		Type:        wire.Pong,
		Sequence:    seq,
		Ack:         ack,
		AckBitfield: bitfield,
		HostTick:    s.clock.LocalTick(),
	}.Write(nil)
	out = append(out, pingPayload[0], pingPayload[1])
	conn.markSent(now)
	return out
}
