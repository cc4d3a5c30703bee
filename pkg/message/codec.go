package message

import (
	"bytes"
	"fmt"
	"io"

	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Message section wire layout: message_count:u8 followed by, per
// message, kind:u16 and the replica's self-delimiting payload. Both
// sides of the connection share this codec; the manifest is the
// authority on payload boundaries.

// MaxMessagesPerSection is the wire-level cap imposed by the one-byte
// count prefix.
const MaxMessagesPerSection = 255

// WriteSection encodes msgs into a message section. Callers bound the
// batch with MaxMessagesPerSection and their MTU budget before
// calling; an oversized batch is a programming error here, not a
// runtime condition.
func WriteSection(buf *bytes.Buffer, msgs []world.Replica) error {
	if len(msgs) > MaxMessagesPerSection {
		return fmt.Errorf("message: %d messages exceeds the per-section cap of %d", len(msgs), MaxMessagesPerSection)
	}
	buf.WriteByte(byte(len(msgs)))
	for _, msg := range msgs {
		kind := msg.Kind().ToU16()
		buf.WriteByte(byte(kind >> 8))
		buf.WriteByte(byte(kind))
		if err := msg.Write(buf); err != nil {
			return fmt.Errorf("message: encoding kind %d: %w", kind, err)
		}
	}
	return nil
}

// ReadSection decodes a message section, constructing each message
// through the manifest. An unknown kind id poisons the rest of the
// section (the payload boundary is lost), so the whole section is
// rejected for the caller to drop and log.
func ReadSection(r io.Reader, manifest world.Manifest) ([]world.Replica, error) {
	var count [1]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, fmt.Errorf("message: reading section count: %w", err)
	}

	msgs := make([]world.Replica, 0, count[0])
	for i := 0; i < int(count[0]); i++ {
		var kindBytes [2]byte
		if _, err := io.ReadFull(r, kindBytes[:]); err != nil {
			return nil, fmt.Errorf("message: reading kind of message %d: %w", i, err)
		}
		id := uint16(kindBytes[0])<<8 | uint16(kindBytes[1])
		kind, ok := manifest.KindByID(id)
		if !ok {
			return nil, fmt.Errorf("message: unknown kind id %d in message %d", id, i)
		}
		msg, err := manifest.CreateReplica(kind, r)
		if err != nil {
			return nil, fmt.Errorf("message: decoding message %d of kind %d: %w", i, id, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
