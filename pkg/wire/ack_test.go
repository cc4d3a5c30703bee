package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifiable struct {
	delivered []uint16
	dropped   []uint16
}

func (n *recordingNotifiable) NotifyPacketDelivered(index uint16) {
	n.delivered = append(n.delivered, index)
}
func (n *recordingNotifiable) NotifyPacketDropped(index uint16) {
	n.dropped = append(n.dropped, index)
}

func TestReceiveWindowAckFields(t *testing.T) {
	w := NewReceiveWindow()
	w.Record(5)
	w.Record(6)
	w.Record(8)

	ack, bitfield := w.AckFields()
	assert.Equal(t, uint16(8), ack)
	assert.NotZero(t, bitfield&(1<<1)) // ack-2 == 6
	assert.NotZero(t, bitfield&(1<<2)) // ack-3 == 5
	assert.Zero(t, bitfield&(1<<0))    // ack-1 == 7, never received
}

func TestReceiveWindowEmpty(t *testing.T) {
	w := NewReceiveWindow()
	ack, bitfield := w.AckFields()
	assert.Zero(t, ack)
	assert.Zero(t, bitfield)
}

func TestSendLedgerDeliveredByAck(t *testing.T) {
	l := NewSendLedger()
	seq, ok := l.NextSequence()
	require.True(t, ok)

	n := &recordingNotifiable{}
	l.Process(seq, 0, n)

	assert.Equal(t, []uint16{seq}, n.delivered)
	assert.Empty(t, n.dropped)
	assert.Zero(t, l.Outstanding())
}

func TestSendLedgerDeliveredByBitfield(t *testing.T) {
	l := NewSendLedger()
	first, ok := l.NextSequence()
	require.True(t, ok)
	_, ok = l.NextSequence()
	require.True(t, ok)
	third, ok := l.NextSequence()
	require.True(t, ok)

	n := &recordingNotifiable{}
	// ack the third; bit 1 (ack-2) confirms the first.
	l.Process(third, 1<<1, n)

	assert.ElementsMatch(t, []uint16{third, first}, n.delivered)
	// the second was neither acked nor aged out of the window.
	assert.Equal(t, 1, l.Outstanding())
}

func TestSendLedgerInfersDropOutsideWindow(t *testing.T) {
	l := NewSendLedger()
	seq, ok := l.NextSequence()
	require.True(t, ok)

	n := &recordingNotifiable{}
	l.Process(seq+ackWindow+1, 0, n)

	assert.Equal(t, []uint16{seq}, n.dropped)
	assert.Empty(t, n.delivered)
}

func TestSendLedgerRespectsMaxOutstanding(t *testing.T) {
	l := NewSendLedger()
	for i := 0; i < MaxOutstanding; i++ {
		_, ok := l.NextSequence()
		require.True(t, ok)
	}
	_, ok := l.NextSequence()
	assert.False(t, ok)
}

func TestSendLedgerNotResolvedTwice(t *testing.T) {
	l := NewSendLedger()
	seq, _ := l.NextSequence()

	n := &recordingNotifiable{}
	l.Process(seq, 0, n)
	l.Process(seq, 0, n)

	assert.Len(t, n.delivered, 1)
}
