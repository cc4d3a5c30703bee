package wire

import (
	"bytes"
	"fmt"
	"io"
)

// Command is one client-issued input as it travels the wire: the tick
// it was issued on plus an application-opaque payload. The engine
// never interprets the payload; it only timestamps and orders it.
type Command struct {
	Tick    uint16
	Payload []byte
}

// MaxCommandsPerSection is the wire-level cap imposed by the one-byte
// count prefix.
const MaxCommandsPerSection = 255

// MaxCommandPayload is the per-command payload cap imposed by the
// one-byte length prefix.
const MaxCommandPayload = 255

// WriteCommandSection encodes a command section: command_count:u8
// followed by tick:u16, payload_len:u8, payload per command.
func WriteCommandSection(buf *bytes.Buffer, cmds []Command) error {
	if len(cmds) > MaxCommandsPerSection {
		return fmt.Errorf("wire: %d commands exceeds the per-section cap of %d", len(cmds), MaxCommandsPerSection)
	}
	buf.WriteByte(byte(len(cmds)))
	for _, c := range cmds {
		if len(c.Payload) > MaxCommandPayload {
			return fmt.Errorf("wire: command payload of %d bytes exceeds %d", len(c.Payload), MaxCommandPayload)
		}
		buf.WriteByte(byte(c.Tick >> 8))
		buf.WriteByte(byte(c.Tick))
		buf.WriteByte(byte(len(c.Payload)))
		buf.Write(c.Payload)
	}
	return nil
}

// ReadCommandSection decodes a command section written by
// WriteCommandSection.
func ReadCommandSection(r io.Reader) ([]Command, error) {
	var count [1]byte
	if _, err := io.ReadFull(r, count[:]); err != nil {
		return nil, fmt.Errorf("wire: reading command count: %w", err)
	}

	cmds := make([]Command, 0, count[0])
	for i := 0; i < int(count[0]); i++ {
		var head [3]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, fmt.Errorf("wire: reading header of command %d: %w", i, err)
		}
		payload := make([]byte, head[2])
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: reading payload of command %d: %w", i, err)
		}
		cmds = append(cmds, Command{
			Tick:    uint16(head[0])<<8 | uint16(head[1]),
			Payload: payload,
		})
	}
	return cmds, nil
}
