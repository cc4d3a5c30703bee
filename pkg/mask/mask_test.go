package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetClearGetBit(t *testing.T) {
	m := New(4)
	assert.True(t, m.IsEmpty())

	m.SetBit(0)
	m.SetBit(2)
	assert.True(t, m.GetBit(0))
	assert.False(t, m.GetBit(1))
	assert.True(t, m.GetBit(2))
	assert.False(t, m.IsEmpty())

	m.ClearBit(0)
	assert.False(t, m.GetBit(0))
}

func TestOrAndNand(t *testing.T) {
	a := New(8)
	a.SetBit(0)
	a.SetBit(1)

	b := New(8)
	b.SetBit(1)
	b.SetBit(2)

	union := a.Clone()
	union.Or(b)
	assert.True(t, union.GetBit(0))
	assert.True(t, union.GetBit(1))
	assert.True(t, union.GetBit(2))

	remainder := a.Clone()
	remainder.Nand(b)
	assert.True(t, remainder.GetBit(0))
	assert.False(t, remainder.GetBit(1))
	assert.False(t, remainder.GetBit(2))
}

func TestCloneIndependence(t *testing.T) {
	a := New(8)
	a.SetBit(3)
	b := a.Clone()
	b.SetBit(4)

	assert.False(t, a.GetBit(4))
	assert.True(t, b.GetBit(3))
}

func TestWriteReadRoundTrip(t *testing.T) {
	m := New(20)
	m.SetBit(0)
	m.SetBit(19)

	buf := m.Write(nil)
	got, n, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.True(t, got.GetBit(0))
	assert.True(t, got.GetBit(19))
	assert.False(t, got.GetBit(1))
}

func TestReadTruncated(t *testing.T) {
	_, _, err := Read([]byte{})
	assert.Error(t, err)

	_, _, err = Read([]byte{3, 1, 2})
	assert.Error(t, err)
}

func TestNandConservesDroppedBitsAcrossInFlightUpdates(t *testing.T) {
	// Models the drop-reconciliation invariant: bits still covered by a
	// later, still-in-flight update are not re-sent.
	dropped := New(4)
	dropped.SetBit(0)

	inFlight := New(4)
	inFlight.SetBit(1)

	dropped.Nand(inFlight)
	assert.True(t, dropped.GetBit(0))
	assert.False(t, dropped.GetBit(1))
}
