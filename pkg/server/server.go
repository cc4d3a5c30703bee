// Package server hosts the coordinator tying the handshake, framing,
// message, and entity layers together into the single object an
// application talks to: one Server per process, one connection per
// connected client.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/replisync/go-entity-replicator/pkg/config"
	"github.com/replisync/go-entity-replicator/pkg/entity"
	"github.com/replisync/go-entity-replicator/pkg/handshake"
	"github.com/replisync/go-entity-replicator/pkg/keygen"
	"github.com/replisync/go-entity-replicator/pkg/message"
	"github.com/replisync/go-entity-replicator/pkg/tick"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Server is the process-wide coordinator: it owns the handshake
// secret, the connection table, room/scope membership, the tick
// clock, and the outgoing event queue the application drains every
// loop iteration.
type Server struct {
	mu sync.Mutex

	cfg    config.Config
	secret handshake.Secret

	world    entity.WorldView
	diff     *entity.DiffHandler
	manifest world.Manifest

	keys        *keygen.Generator[uint32]
	byAddr      map[string]UserKey
	connections map[UserKey]*connection

	Rooms  *RoomManager
	clock  *tick.Manager
	writer *entity.Writer

	events []Event

	// telemetry is overridable in tests; production callers get
	// sampleHostTelemetry, which shells out to gopsutil.
	telemetry func() (cpuPercent float64, memUsedBytes uint64, err error)
}

// New constructs a Server with a fresh per-process handshake secret.
// cfg is normalized against config.Default via WithDefaults.
func New(cfg config.Config, wv entity.WorldView, diff *entity.DiffHandler, manifest world.Manifest) (*Server, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, fmt.Errorf("server: normalizing config: %w", err)
	}
	secret, err := handshake.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("server: generating handshake secret: %w", err)
	}
	return &Server{
		cfg:         cfg,
		secret:      secret,
		world:       wv,
		diff:        diff,
		manifest:    manifest,
		keys:        keygen.New[uint32](),
		byAddr:      make(map[string]UserKey),
		connections: make(map[UserKey]*connection),
		Rooms:       NewRoomManager(),
		clock:       tick.NewManager(cfg.TickInterval, tick.DefaultEMAAlpha),
		writer:      entity.NewWriter(0),
		telemetry:   sampleHostTelemetry,
	}, nil
}

// ChallengeResponse answers a ClientChallengeRequest. The server keeps
// no per-client state until the matching ClientConnectRequest arrives,
// so this is a pure function of timestamp, the client's advertised
// protocol version, and the process secret. An incompatible version
// gets an error instead of a cookie, ending the handshake at the
// first exchange.
func (s *Server) ChallengeResponse(timestamp uint64, clientVersion string) ([]byte, error) {
	if err := handshake.CheckCompatible(clientVersion); err != nil {
		return nil, fmt.Errorf("server: challenge request: %w", err)
	}
	return handshake.Sign(s.secret, timestamp), nil
}

// ConnectRequest validates a ClientConnectRequest's challenge tag and
// either resumes the existing connection for addr (resent request) or
// allocates a new UserKey and queues an AuthorizationEvent for the
// application to accept or reject. authPayload is the application-
// defined auth blob carried alongside the request.
func (s *Server) ConnectRequest(addr string, timestamp uint64, tag, authPayload []byte) (UserKey, error) {
	if !handshake.Verify(s.secret, timestamp, tag) {
		return 0, fmt.Errorf("server: connect request from %s: invalid challenge tag", addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byAddr[addr]; ok {
		conn := s.connections[user]
		if conn.connectTimestamp != timestamp {
			return 0, fmt.Errorf("server: connect request from %s: timestamp mismatch on existing connection", addr)
		}
		return user, nil
	}

	user := UserKey(s.keys.Generate())
	conn := newConnection(user, addr, timestamp, s.cfg.SendHandshakeInterval)
	conn.pendingAuth = authPayload
	conn.machine.ReceiveConnectRequest(timestamp)
	s.connections[user] = conn
	s.byAddr[addr] = user

	s.events = append(s.events, AuthorizationEvent{User: user, Auth: authPayload})
	return user, nil
}

// AcceptConnection promotes a pending connection to Connected, wiring
// up its message and entity managers, and queues a ConnectionEvent.
func (s *Server) AcceptConnection(user UserKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[user]
	if !ok {
		return fmt.Errorf("server: accept: unknown user %d", user)
	}
	conn.machine.Accept()
	conn.messages = message.NewManager()
	s.diff.AddConnection(uint64(user))
	conn.entities = entity.NewManager(uint64(user), s.world, s.diff)
	conn.pendingAuth = nil

	s.events = append(s.events, ConnectionEvent{User: user})
	return nil
}

// RejectConnection tears down a pending connection without ever
// having raised a ConnectionEvent for it.
func (s *Server) RejectConnection(user UserKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[user]
	if !ok {
		return fmt.Errorf("server: reject: unknown user %d", user)
	}
	conn.machine.Reject()
	s.destroyLocked(user, conn)
	return nil
}

// PendingHandshakeResends returns every user still short of Connected
// whose ResendTimer is due, marking each as just-sent so the caller's
// retransmitted challenge/connect response isn't immediately reported
// due again next call.
func (s *Server) PendingHandshakeResends(now time.Time) []UserKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []UserKey
	for user, conn := range s.connections {
		if conn.machine.Connected() {
			continue
		}
		if conn.resend.Due(now) {
			due = append(due, user)
			conn.resend.MarkSent(now)
		}
	}
	return due
}

// MarkHeard resets user's inactivity timer. Call on every inbound
// packet regardless of type.
func (s *Server) MarkHeard(user UserKey, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[user]; ok {
		conn.markHeard(now)
	}
}

// MarkSent resets user's heartbeat timer. Call on every outbound
// packet.
func (s *Server) MarkSent(user UserKey, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.connections[user]; ok {
		conn.markSent(now)
	}
}

// CheckTimeouts drops every connection that has not been heard from
// within the configured disconnection timeout, queuing a
// DisconnectionEvent for each. A connection that has never had an
// inbound packet recorded is never timed out.
func (s *Server) CheckTimeouts(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for user, conn := range s.connections {
		if conn.timedOut(now, s.cfg.DisconnectionTimeoutDuration) {
			s.destroyLocked(user, conn)
			s.events = append(s.events, DisconnectionEvent{User: user})
		}
	}
}

// destroyLocked removes every trace of a connection. Callers must
// hold s.mu.
func (s *Server) destroyLocked(user UserKey, conn *connection) {
	delete(s.connections, user)
	delete(s.byAddr, conn.addr)
	if conn.entities != nil {
		s.diff.RemoveConnection(uint64(user))
	}
	s.Rooms.DestroyUser(user)
	s.keys.Recycle(uint32(user))
}

// Tick advances the coordinator's local tick, samples host telemetry,
// and queues a TickEvent. Call once per tick interval.
func (s *Server) Tick() {
	s.clock.Advance()
	cpuPercent, memUsed, err := s.telemetry()

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := TickEvent{Tick: s.clock.LocalTick()}
	if err == nil {
		ev.CPUPercent = cpuPercent
		ev.MemoryUsedBytes = memUsed
	}
	s.events = append(s.events, ev)
}

// ReportError queues a non-fatal ErrorEvent. user is zero when the
// error is not attributable to any single connection.
func (s *Server) ReportError(user UserKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ErrorEvent{User: user, Err: err})
}

// Drain returns and clears every event queued since the last Drain.
func (s *Server) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// Connections returns every currently connected (post-Accept) user.
func (s *Server) Connections() []UserKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserKey, 0, len(s.connections))
	for user, conn := range s.connections {
		if conn.machine.Connected() {
			out = append(out, user)
		}
	}
	return out
}

// EntityManager returns the entity.Manager driving user's replication
// stream, for the packet writer to pull actions from.
func (s *Server) EntityManager(user UserKey) (*entity.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[user]
	if !ok || conn.entities == nil {
		return nil, false
	}
	return conn.entities, true
}

// MessageManager returns the message.Manager driving user's
// application-message stream.
func (s *Server) MessageManager(user UserKey) (*message.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[user]
	if !ok || conn.messages == nil {
		return nil, false
	}
	return conn.messages, true
}

func sampleHostTelemetry() (float64, uint64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("server: sampling cpu: %w", err)
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("server: sampling memory: %w", err)
	}
	return cpuPercent, vm.Used, nil
}
