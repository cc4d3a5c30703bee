package message

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replisync/go-entity-replicator/pkg/mask"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// chatMsg is a one-byte self-delimiting message for codec tests; the
// string-valued fakeMsg in message_test.go has no length framing.
type chatMsg struct {
	value byte
}

func (c *chatMsg) Kind() world.Kind                               { return fakeKind(7) }
func (c *chatMsg) Write(w io.Writer) error                        { _, err := w.Write([]byte{c.value}); return err }
func (c *chatMsg) WritePartial(w io.Writer, m *mask.Mask) error   { return c.Write(w) }
func (c *chatMsg) Clone() world.Replica                           { return &chatMsg{value: c.value} }
func (c *chatMsg) Equal(other world.Replica) bool {
	o, ok := other.(*chatMsg)
	return ok && o.value == c.value
}

type chatManifest struct{}

func (chatManifest) CreateReplica(kind world.Kind, r io.Reader) (world.Replica, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("reading chat byte: %w", err)
	}
	return &chatMsg{value: b[0]}, nil
}
func (chatManifest) KindOf(p world.Replica) world.Kind { return p.Kind() }
func (chatManifest) KindByID(id uint16) (world.Kind, bool) {
	if id == 7 {
		return fakeKind(7), true
	}
	return nil, false
}

func TestSectionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := []world.Replica{&chatMsg{value: 10}, &chatMsg{value: 20}}
	require.NoError(t, WriteSection(&buf, out))

	in, err := ReadSection(&buf, chatManifest{})
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, byte(10), in[0].(*chatMsg).value)
	assert.Equal(t, byte(20), in[1].(*chatMsg).value)
}

func TestSectionEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSection(&buf, nil))
	assert.Equal(t, []byte{0}, buf.Bytes())

	in, err := ReadSection(&buf, chatManifest{})
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestReadSectionRejectsUnknownKind(t *testing.T) {
	// count=1, kind=9 (unregistered), payload byte.
	_, err := ReadSection(bytes.NewReader([]byte{1, 0, 9, 42}), chatManifest{})
	assert.Error(t, err)
}

func TestReadSectionRejectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSection(&buf, []world.Replica{&chatMsg{value: 10}}))
	truncated := buf.Bytes()[:buf.Len()-1]

	_, err := ReadSection(bytes.NewReader(truncated), chatManifest{})
	assert.Error(t, err)
}
