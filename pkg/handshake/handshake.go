// Package handshake implements the challenge/response connection
// handshake: a signed-timestamp cookie so the server can validate a
// connecting client without holding any per-client state until the
// client proves it round-tripped the tag, plus the per-connection
// state machine that governs which packet types are valid at each
// stage.
package handshake

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// Secret is a per-process HMAC key. It is never persisted: restarting
// the server invalidates every outstanding cookie, so a reconnecting
// client must run the handshake again from scratch.
type Secret []byte

// NewSecret generates a fresh 32-byte key from the OS CSPRNG.
func NewSecret() (Secret, error) {
	key := make([]byte, sha256.Size)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("handshake: generating secret: %w", err)
	}
	return key, nil
}

// Sign computes tag = HMAC_SHA256(secret, timestamp), the cookie the
// server hands back in ServerChallengeResponse.
func Sign(secret Secret, timestamp uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], timestamp)
	mac := hmac.New(sha256.New, secret)
	mac.Write(buf[:])
	return mac.Sum(nil)
}

// Verify reports whether tag is the HMAC the server itself would have
// produced for timestamp, using a constant-time comparison so a
// client fishing for the secret byte-by-byte learns nothing from
// response timing.
func Verify(secret Secret, timestamp uint64, tag []byte) bool {
	expected := Sign(secret, timestamp)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}

// State is a connection's position in the handshake/liveness state
// machine.
type State int

const (
	AwaitingChallengeResponse State = iota
	AwaitingConnectResponse
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case AwaitingChallengeResponse:
		return "AwaitingChallengeResponse"
	case AwaitingConnectResponse:
		return "AwaitingConnectResponse"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Machine tracks one connection's handshake progress. It holds the
// timestamp the cookie was signed over, since a reconnecting client
// that presents a mismatched timestamp must be dropped back to
// Disconnected rather than silently accepted.
type Machine struct {
	state     State
	timestamp uint64
}

// NewMachine starts a connection in AwaitingChallengeResponse.
func NewMachine() *Machine {
	return &Machine{state: AwaitingChallengeResponse}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// ReceiveChallengeResponse advances a client-side machine past the
// server's ServerChallengeResponse, recording the timestamp the
// exchange was signed over.
func (m *Machine) ReceiveChallengeResponse(timestamp uint64) {
	if m.state != AwaitingChallengeResponse {
		return
	}
	m.timestamp = timestamp
	m.state = AwaitingConnectResponse
}

// ReceiveConnectRequest validates a server-side machine's incoming
// ClientConnectRequest against the expected timestamp. A mismatch
// during reconnection means the client is replaying a stale cookie
// against a process that has since rotated its secret, or attempting
// to forge one -- the connection is dropped rather than accepted.
func (m *Machine) ReceiveConnectRequest(timestamp uint64) bool {
	if m.state == AwaitingChallengeResponse {
		m.timestamp = timestamp
		m.state = AwaitingConnectResponse
		return true
	}
	if timestamp != m.timestamp {
		m.state = Disconnected
		return false
	}
	return true
}

// Accept transitions to Connected once the application has approved
// the Authorization event.
func (m *Machine) Accept() {
	m.state = Connected
}

// Reject transitions to Disconnected; the connection is torn down
// without a ServerConnectResponse.
func (m *Machine) Reject() {
	m.state = Disconnected
}

// Timeout transitions to Disconnected after
// disconnection_timeout_duration elapses without any inbound packet.
func (m *Machine) Timeout() {
	m.state = Disconnected
}

// Connected reports whether the handshake has completed.
func (m *Machine) Connected() bool {
	return m.state == Connected
}
