package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/replisync/go-entity-replicator/pkg/entity"
	"github.com/replisync/go-entity-replicator/pkg/handshake"
	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/wire"
)

// UserKey names a connected client, scoped to this server process.
type UserKey uint32

// connection is the coordinator's per-client bundle: the handshake
// state machine, the framing ledgers, and (once Connected) the
// message and entity managers driving this client's packet stream.
type connection struct {
	key  UserKey
	addr string
	// correlationID is a random id drawn when the connection is
	// created, independent of the recyclable UserKey. No log line or
	// event carries it.
	correlationID uuid.UUID

	machine *handshake.Machine
	resend  *handshake.ResendTimer

	sendLedger *wire.SendLedger
	recvWindow *wire.ReceiveWindow

	messages *message.Manager
	entities *entity.Manager

	pendingAuth      []byte
	connectTimestamp uint64

	lastHeard time.Time
	lastSent  time.Time
}

func newConnection(key UserKey, addr string, timestamp uint64, resendInterval time.Duration) *connection {
	return &connection{
		key:              key,
		addr:             addr,
		correlationID:    uuid.New(),
		machine:          handshake.NewMachine(),
		resend:           handshake.NewResendTimer(resendInterval),
		sendLedger:       wire.NewSendLedger(),
		recvWindow:       wire.NewReceiveWindow(),
		connectTimestamp: timestamp,
	}
}

// markHeard resets the inactivity timer on receipt of any inbound
// packet, regardless of its type.
func (c *connection) markHeard(now time.Time) {
	c.lastHeard = now
}

// markSent resets the heartbeat timer on any outbound packet.
func (c *connection) markSent(now time.Time) {
	c.lastSent = now
}

// timedOut reports whether more than threshold has elapsed since the
// last inbound packet.
func (c *connection) timedOut(now time.Time, threshold time.Duration) bool {
	if c.lastHeard.IsZero() {
		return false
	}
	return now.Sub(c.lastHeard) > threshold
}
