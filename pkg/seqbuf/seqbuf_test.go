package seqbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertGet(t *testing.T) {
	b := New[string](16)
	b.Insert(5, "five")

	v, ok := b.Get(5)
	assert.True(t, ok)
	assert.Equal(t, "five", v)

	_, ok = b.Get(6)
	assert.False(t, ok)
}

func TestInsertEvictsOnlyWhenNewer(t *testing.T) {
	b := New[int](8)
	b.Insert(8, 100) // same bucket as 0 for capacity 8
	b.Insert(0, 200) // older sequence number, should not evict

	v, ok := b.Get(8)
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	_, ok = b.Get(0)
	assert.False(t, ok)
}

func TestGetReturnsNoneAfterOverwrite(t *testing.T) {
	b := New[int](4)
	b.Insert(1, 10)
	b.Insert(5, 20) // wraps to the same slot as 1, and is newer

	_, ok := b.Get(1)
	assert.False(t, ok)

	v, ok := b.Get(5)
	assert.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestRemoveUntil(t *testing.T) {
	b := New[int](16)
	b.Insert(1, 1)
	b.Insert(2, 2)
	b.Insert(3, 3)

	b.RemoveUntil(2)

	_, ok := b.Get(1)
	assert.False(t, ok)
	_, ok = b.Get(2)
	assert.False(t, ok)
	v, ok := b.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestWrappingDiffAcrossRollover(t *testing.T) {
	assert.Greater(t, WrappingDiff(1, 65535), int16(0))
	assert.Less(t, WrappingDiff(65535, 1), int16(0))
	assert.Equal(t, int16(0), WrappingDiff(42, 42))
}

func TestRemoveEvictsExactSeq(t *testing.T) {
	b := New[int](8)
	b.Insert(3, 30)
	b.Remove(3)
	_, ok := b.Get(3)
	assert.False(t, ok)
}
