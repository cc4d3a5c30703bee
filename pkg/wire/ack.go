package wire

import "github.com/replisync/go-entity-replicator/pkg/seqbuf"

// MaxOutstanding bounds the number of sent packets a connection may
// have awaiting ack/drop resolution at once. This is an explicit
// design decision where the source left no hard limit: a
// reimplementation refuses to allocate a new outgoing sequence number
// once this many are still outstanding, rather than growing the
// bookkeeping tables without bound.
const MaxOutstanding = 32768

// ackWindow is the number of trailing sequence numbers the bitfield
// covers, one bit per packet before Ack.
const ackWindow = 32

// Notifiable receives per-packet delivery notifications so that
// higher layers (the message manager, the entity manager) can
// retransmit or reconcile based on whether a specific outgoing packet
// made it to the peer.
type Notifiable interface {
	NotifyPacketDelivered(index uint16)
	NotifyPacketDropped(index uint16)
}

// ReceiveWindow tracks which of the peer's recent sequence numbers
// this side has received, so it can build the (ack, ack bitfield)
// pair to stamp on its own outgoing headers.
type ReceiveWindow struct {
	highest uint16
	seen    bool
	history *seqbuf.Buffer[bool]
}

// NewReceiveWindow constructs an empty ReceiveWindow.
func NewReceiveWindow() *ReceiveWindow {
	return &ReceiveWindow{history: seqbuf.New[bool](ackWindow + 1)}
}

// Record notes that seq was received from the peer.
func (w *ReceiveWindow) Record(seq uint16) {
	w.history.Insert(seq, true)
	if !w.seen || seqbuf.WrappingDiff(seq, w.highest) > 0 {
		w.highest = seq
		w.seen = true
	}
}

// AckFields returns the (ack, ack bitfield) pair describing this
// side's receive history, for stamping on an outgoing Header.
func (w *ReceiveWindow) AckFields() (ack uint16, bitfield uint32) {
	if !w.seen {
		return 0, 0
	}
	ack = w.highest
	for i := 0; i < ackWindow; i++ {
		seq := ack - uint16(i+1)
		if got, ok := w.history.Get(seq); ok && got {
			bitfield |= 1 << uint(i)
		}
	}
	return ack, bitfield
}

// SendLedger tracks locally sent sequence numbers awaiting delivery
// confirmation from the peer's ack/bitfield, and infers a drop once a
// sequence falls outside the ack window without having been
// confirmed.
type SendLedger struct {
	next        uint16
	outstanding map[uint16]struct{}
	order       []uint16 // oldest-first, for window eviction
}

// NewSendLedger constructs an empty SendLedger.
func NewSendLedger() *SendLedger {
	return &SendLedger{outstanding: make(map[uint16]struct{})}
}

// NextSequence allocates the next outgoing sequence number and marks
// it outstanding. ok is false if MaxOutstanding sent packets are
// already awaiting resolution -- the caller must hold off sending
// until some resolve via Process.
func (l *SendLedger) NextSequence() (seq uint16, ok bool) {
	if len(l.outstanding) >= MaxOutstanding {
		return 0, false
	}
	seq = l.next
	l.next++
	l.outstanding[seq] = struct{}{}
	l.order = append(l.order, seq)
	return seq, true
}

// Outstanding reports how many sent packets are awaiting resolution.
func (l *SendLedger) Outstanding() int {
	return len(l.outstanding)
}

// Process folds an incoming (ack, ack bitfield) into the ledger,
// invoking n.NotifyPacketDelivered for every outstanding sequence the
// bitfield confirms, and n.NotifyPacketDropped for every outstanding
// sequence that has aged out of the ack window without confirmation.
func (l *SendLedger) Process(ack uint16, bitfield uint32, n Notifiable) {
	l.resolve(ack, n, true)
	for i := 0; i < ackWindow; i++ {
		if bitfield&(1<<uint(i)) != 0 {
			seq := ack - uint16(i+1)
			l.resolve(seq, n, true)
		}
	}

	cutoff := ack - uint16(ackWindow)
	var remaining []uint16
	for _, seq := range l.order {
		if _, ok := l.outstanding[seq]; !ok {
			continue
		}
		if seqbuf.WrappingDiff(cutoff, seq) > 0 {
			delete(l.outstanding, seq)
			n.NotifyPacketDropped(seq)
			continue
		}
		remaining = append(remaining, seq)
	}
	l.order = remaining
}

func (l *SendLedger) resolve(seq uint16, n Notifiable, delivered bool) {
	if _, ok := l.outstanding[seq]; !ok {
		return
	}
	delete(l.outstanding, seq)
	if delivered {
		n.NotifyPacketDelivered(seq)
	}
}
