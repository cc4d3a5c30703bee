// Package tick implements the host tick clock and round-trip-time
// estimation shared by both ends of a connection: a local tick counter
// advanced by the caller's fixed-rate loop, and an exponential moving
// average of ping round-trip samples used to translate a peer's tick
// into local time.
package tick

import (
	"sync"
	"time"

	"github.com/replisync/go-entity-replicator/pkg/atomiccounter"
)

// DefaultEMAAlpha weights the newest RTT sample at 20% -- aggressive
// enough to track a changing network quickly, stable enough not to
// chase jitter.
const DefaultEMAAlpha = 0.2

// Manager tracks this peer's local tick counter and its estimate of
// the round-trip time to the remote peer.
type Manager struct {
	interval time.Duration
	alpha    float64

	mu       sync.Mutex
	localTick uint16
	rttEMA   time.Duration
	haveRTT  bool

	pending   map[uint16]time.Time
	pingsSent atomiccounter.Counter
}

// NewManager builds a Manager advancing one tick every interval, with
// RTT samples smoothed by alpha (0,1]. A non-positive alpha selects
// DefaultEMAAlpha.
func NewManager(interval time.Duration, alpha float64) *Manager {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultEMAAlpha
	}
	return &Manager{
		interval: interval,
		alpha:    alpha,
		pending:  make(map[uint16]time.Time),
	}
}

// Interval returns the configured tick duration.
func (m *Manager) Interval() time.Duration { return m.interval }

// LocalTick returns the current local tick counter.
func (m *Manager) LocalTick() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localTick
}

// Advance increments the local tick counter (wrapping at u16) and
// returns the new value, meant to be called once per fixed-rate loop
// iteration.
func (m *Manager) Advance() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localTick++
	return m.localTick
}

// SendPing records that a ping was just sent at wall-clock time now,
// returning a token to hand to RecordPong when (if) the reply arrives.
func (m *Manager) SendPing(now time.Time) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uint16(m.pingsSent.Increment())
	m.pending[token] = now
	return token
}

// RecordPong folds a round-trip sample into the RTT estimate. Unknown
// or already-consumed tokens (a duplicate or very late pong) are
// ignored.
func (m *Manager) RecordPong(token uint16, now time.Time) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent, ok := m.pending[token]
	if !ok {
		return 0, false
	}
	delete(m.pending, token)

	sample := now.Sub(sent)
	if !m.haveRTT {
		m.rttEMA = sample
		m.haveRTT = true
	} else {
		m.rttEMA = time.Duration(m.alpha*float64(sample) + (1-m.alpha)*float64(m.rttEMA))
	}
	return m.rttEMA, true
}

// RTT returns the current smoothed round-trip estimate, or ok=false if
// no sample has landed yet.
func (m *Manager) RTT() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rttEMA, m.haveRTT
}

// EstimateRemoteTick projects a remote peer's last-known tick forward
// by half the current RTT (the one-way delay an incoming packet
// already spent in flight), in units of the configured tick interval.
func (m *Manager) EstimateRemoteTick(remoteTick uint16) uint16 {
	rtt, ok := m.RTT()
	if !ok || m.interval <= 0 {
		return remoteTick
	}
	ticksInFlight := uint16(rtt / (2 * m.interval))
	return remoteTick + ticksInFlight
}
