package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffHandlerSetBitFansOutToConnections(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.AddConnection(20)

	d.SetBit(1, 3)

	assert.True(t, d.Snapshot(1, 10).GetBit(3))
	assert.True(t, d.Snapshot(1, 20).GetBit(3))
}

func TestDiffHandlerClearIsPerConnection(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.AddConnection(20)
	d.SetBit(1, 0)

	d.Clear(1, 10)

	assert.True(t, d.IsEmpty(1, 10))
	assert.False(t, d.IsEmpty(1, 20))
}

func TestDiffHandlerDeregisterDropsWindows(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.SetBit(1, 0)

	d.Deregister(1)

	assert.True(t, d.IsEmpty(1, 10))
}

func TestDiffHandlerRemoveConnectionDropsItsWindowOnly(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.AddConnection(20)
	d.SetBit(1, 0)

	d.RemoveConnection(10)

	assert.True(t, d.IsEmpty(1, 10))
	assert.False(t, d.IsEmpty(1, 20))
}

func TestDiffHandlerOrRestoresBits(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.SetBit(1, 2)

	snap := d.Snapshot(1, 10)
	d.Clear(1, 10)
	assert.True(t, d.IsEmpty(1, 10))

	d.Or(1, 10, snap)
	assert.True(t, d.Snapshot(1, 10).GetBit(2))
}

func TestDiffHandlerAddConnectionDoesNotClobberExisting(t *testing.T) {
	d := NewDiffHandler()
	d.Register(1, 8)
	d.AddConnection(10)
	d.SetBit(1, 0)

	d.AddConnection(10) // re-add, should not reset the window

	assert.False(t, d.IsEmpty(1, 10))
}
