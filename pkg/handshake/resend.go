package handshake

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ResendTimer decides when a handshake packet awaiting a response
// should be resent. The engine is cooperative and single-threaded, so
// unlike backoff.Retry this never blocks -- the caller polls Due on
// every tick and resends when it reports true.
type ResendTimer struct {
	policy   backoff.BackOff
	lastSent time.Time
	next     time.Duration
}

// NewResendTimer builds a timer around send_handshake_interval. A
// constant interval is what the handshake actually wants -- unlike
// the reconciler's exponential backoff against an overloaded API,
// there's no reason to slow down resends of a cheap, idempotent
// handshake packet.
func NewResendTimer(interval time.Duration) *ResendTimer {
	return &ResendTimer{policy: backoff.NewConstantBackOff(interval)}
}

// MarkSent records that a handshake packet was just sent and arms the
// next resend interval.
func (t *ResendTimer) MarkSent(now time.Time) {
	t.lastSent = now
	t.next = t.policy.NextBackOff()
}

// Due reports whether enough time has passed since the last send that
// the packet should be resent, because no response has arrived.
func (t *ResendTimer) Due(now time.Time) bool {
	if t.lastSent.IsZero() {
		return true
	}
	return now.Sub(t.lastSent) >= t.next
}

// Reset returns the timer to its initial, un-sent state, e.g. after a
// response finally arrives and the handshake advances.
func (t *ResendTimer) Reset() {
	t.lastSent = time.Time{}
	t.policy.Reset()
}
