// Package message implements the outgoing/incoming message queues
// described for application-level messages: an ordered outgoing FIFO
// with optional guaranteed (at-least-once) delivery, and an incoming
// FIFO of messages the peer delivered. Guaranteed messages popped into
// a packet are recorded so a dropped packet can re-enqueue them;
// delivered packets simply forget the record.
package message

import (
	"github.com/replisync/go-entity-replicator/pkg/world"
)

type entry struct {
	guaranteed bool
	msg        world.Replica
}

// Manager holds one connection's outgoing and incoming message queues.
// It implements wire.Notifiable so a SendLedger can drive delivery and
// drop resolution directly.
type Manager struct {
	outgoing       []entry
	incoming       []world.Replica
	sentGuaranteed map[uint16][]world.Replica
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{sentGuaranteed: make(map[uint16][]world.Replica)}
}

// Enqueue appends msg to the tail of the outgoing queue.
func (m *Manager) Enqueue(guaranteed bool, msg world.Replica) {
	m.outgoing = append(m.outgoing, entry{guaranteed: guaranteed, msg: msg})
}

// HasOutgoing reports whether any message awaits sending.
func (m *Manager) HasOutgoing() bool {
	return len(m.outgoing) > 0
}

// Pop removes and returns the message at the front of the outgoing
// queue. The caller is responsible for calling RecordSent if it
// writes a guaranteed message into the packet, or Unpop if it decides
// the message does not fit and must go back.
func (m *Manager) Pop() (msg world.Replica, guaranteed bool, ok bool) {
	if len(m.outgoing) == 0 {
		return nil, false, false
	}
	e := m.outgoing[0]
	m.outgoing = m.outgoing[1:]
	return e.msg, e.guaranteed, true
}

// Unpop restores a popped message to the front of the outgoing queue,
// preserving its original relative order against anything else still
// queued.
func (m *Manager) Unpop(msg world.Replica, guaranteed bool) {
	m.outgoing = append([]entry{{guaranteed: guaranteed, msg: msg}}, m.outgoing...)
}

// RecordSent clones msg into the ledger for packetIndex. Only
// guaranteed messages should be recorded -- non-guaranteed messages
// are never retransmitted and are silently lost on drop.
func (m *Manager) RecordSent(packetIndex uint16, msg world.Replica) {
	m.sentGuaranteed[packetIndex] = append(m.sentGuaranteed[packetIndex], msg.Clone())
}

// UnrecordSent undoes the most recent RecordSent for packetIndex,
// the symmetric counterpart to Unpop.
func (m *Manager) UnrecordSent(packetIndex uint16) {
	list := m.sentGuaranteed[packetIndex]
	if len(list) == 0 {
		return
	}
	list = list[:len(list)-1]
	if len(list) == 0 {
		delete(m.sentGuaranteed, packetIndex)
	} else {
		m.sentGuaranteed[packetIndex] = list
	}
}

// NotifyPacketDelivered forgets the guaranteed-message ledger for a
// packet that made it to the peer.
func (m *Manager) NotifyPacketDelivered(index uint16) {
	delete(m.sentGuaranteed, index)
}

// NotifyPacketDropped re-enqueues every guaranteed message that was
// written into the dropped packet, at the tail of the outgoing queue,
// preserving their original relative order.
func (m *Manager) NotifyPacketDropped(index uint16) {
	for _, msg := range m.sentGuaranteed[index] {
		m.outgoing = append(m.outgoing, entry{guaranteed: true, msg: msg})
	}
	delete(m.sentGuaranteed, index)
}

// EnqueueIncoming records a message the peer delivered.
func (m *Manager) EnqueueIncoming(msg world.Replica) {
	m.incoming = append(m.incoming, msg)
}

// PopIncoming removes and returns the oldest undelivered incoming
// message.
func (m *Manager) PopIncoming() (world.Replica, bool) {
	if len(m.incoming) == 0 {
		return nil, false
	}
	msg := m.incoming[0]
	m.incoming = m.incoming[1:]
	return msg, true
}
