package server

import "github.com/replisync/go-entity-replicator/pkg/world"

// Event is the user-visible channel: Server.Drain returns the batch
// queued since its previous call, mirroring the single combined event stream the
// connection protocol surfaces instead of a callback per kind.
type Event interface {
	isEvent()
}

// ConnectionEvent fires once a connection reaches Connected.
type ConnectionEvent struct{ User UserKey }

// DisconnectionEvent fires when a connection times out or is
// explicitly dropped; by the time it is observed, all per-connection
// state for User has already been destroyed.
type DisconnectionEvent struct{ User UserKey }

// AuthorizationEvent surfaces a pending ClientConnectRequest for the
// application to accept or reject via Server.AcceptConnection /
// RejectConnection.
type AuthorizationEvent struct {
	User UserKey
	Auth []byte
}

// MessageEvent carries one incoming application message from C5's
// incoming queue.
type MessageEvent struct {
	User UserKey
	Msg  world.Replica
}

// CommandEvent carries one incoming command payload, handed to the
// application to interpret.
type CommandEvent struct {
	User UserKey
	Tick uint16
	Cmd  []byte
}

// TickEvent fires once per tick interval, carrying the coordinator's
// own tick count plus a host telemetry sample.
type TickEvent struct {
	Tick            uint16
	CPUPercent      float64
	MemoryUsedBytes uint64
}

// ErrorEvent surfaces a non-fatal transport or protocol error; the
// connection it names (if any) is not torn down because of it.
type ErrorEvent struct {
	User UserKey
	Err  error
}

func (ConnectionEvent) isEvent()    {}
func (DisconnectionEvent) isEvent() {}
func (AuthorizationEvent) isEvent() {}
func (MessageEvent) isEvent()       {}
func (CommandEvent) isEvent()       {}
func (TickEvent) isEvent()          {}
func (ErrorEvent) isEvent()         {}
