// Package client implements the receiving side of replication: it
// decodes the action stream the server's entity writer produced,
// applies it to the local world, and (via pkg/pawn) maintains the
// predicted shadow state for entities this client owns.
package client

import (
	"bytes"
	"fmt"
	"io"

	"github.com/replisync/go-entity-replicator/pkg/wire"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// decodedComponent is one component slot within a decoded SpawnEntity,
// still carrying its constructed Replica so the caller never has to
// re-parse the payload.
type decodedComponent struct {
	kind           world.Kind
	localComponent uint16
	replica        world.Replica
}

// decodedAction mirrors the server's entity.Action, but addressed by
// local (connection-scoped) keys instead of global ones, as received
// off the wire.
type decodedAction struct {
	kind           wire.ActionType
	localEntity    uint16
	localComponent uint16
	replicaKind    world.Kind
	replica        world.Replica // Insert only
	components     []decodedComponent // Spawn only
	maskBytes      []byte              // Update only
	payload        []byte              // Update only
}

// decodeActions parses a data payload produced by the server's packet
// writer (entity_action_count:u8 followed by that many actions) into
// the ordered list of decoded actions it encodes.
func decodeActions(data []byte, manifest world.Manifest) ([]decodedAction, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("client: empty action payload")
	}
	count := int(data[0])
	r := bytes.NewReader(data[1:])

	actions := make([]decodedAction, 0, count)
	for i := 0; i < count; i++ {
		a, err := decodeOne(r, manifest)
		if err != nil {
			return nil, fmt.Errorf("client: decoding action %d of %d: %w", i, count, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func decodeOne(r *bytes.Reader, manifest world.Manifest) (decodedAction, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading action tag: %w", err)
	}
	tag := wire.ActionType(tagByte)

	switch tag {
	case wire.ActionSpawn:
		return decodeSpawn(r, manifest)
	case wire.ActionDespawn:
		e, err := readU16(r)
		return decodedAction{kind: tag, localEntity: e}, err
	case wire.ActionOwn:
		e, err := readU16(r)
		return decodedAction{kind: tag, localEntity: e}, err
	case wire.ActionDisown:
		e, err := readU16(r)
		return decodedAction{kind: tag, localEntity: e}, err
	case wire.ActionInsert:
		return decodeInsert(r, manifest)
	case wire.ActionRemove:
		c, err := readU16(r)
		return decodedAction{kind: tag, localComponent: c}, err
	case wire.ActionUpdate:
		return decodeUpdate(r)
	default:
		return decodedAction{}, fmt.Errorf("unknown action tag %d", tagByte)
	}
}

func decodeSpawn(r *bytes.Reader, manifest world.Manifest) (decodedAction, error) {
	e, err := readU16(r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading local entity: %w", err)
	}
	n, err := r.ReadByte()
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading component count: %w", err)
	}

	components := make([]decodedComponent, 0, n)
	for i := 0; i < int(n); i++ {
		kindID, err := readU16(r)
		if err != nil {
			return decodedAction{}, fmt.Errorf("reading component %d kind: %w", i, err)
		}
		kind, ok := manifest.KindByID(kindID)
		if !ok {
			return decodedAction{}, fmt.Errorf("component %d: unknown kind id %d", i, kindID)
		}
		localComponent, err := readU16(r)
		if err != nil {
			return decodedAction{}, fmt.Errorf("reading component %d local key: %w", i, err)
		}
		replica, err := manifest.CreateReplica(kind, r)
		if err != nil {
			return decodedAction{}, fmt.Errorf("component %d: constructing replica: %w", i, err)
		}
		components = append(components, decodedComponent{kind: kind, localComponent: localComponent, replica: replica})
	}
	return decodedAction{kind: wire.ActionSpawn, localEntity: e, components: components}, nil
}

func decodeInsert(r *bytes.Reader, manifest world.Manifest) (decodedAction, error) {
	e, err := readU16(r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading local entity: %w", err)
	}
	kindID, err := readU16(r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading kind: %w", err)
	}
	kind, ok := manifest.KindByID(kindID)
	if !ok {
		return decodedAction{}, fmt.Errorf("unknown kind id %d", kindID)
	}
	localComponent, err := readU16(r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading local component key: %w", err)
	}
	replica, err := manifest.CreateReplica(kind, r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("constructing replica: %w", err)
	}
	return decodedAction{
		kind:           wire.ActionInsert,
		localEntity:    e,
		localComponent: localComponent,
		replicaKind:    kind,
		replica:        replica,
	}, nil
}

func decodeUpdate(r *bytes.Reader) (decodedAction, error) {
	localComponent, err := readU16(r)
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading local component key: %w", err)
	}

	lenByte, err := r.ReadByte()
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading mask length: %w", err)
	}
	maskBytes := make([]byte, lenByte)
	if _, err := io.ReadFull(r, maskBytes); err != nil {
		return decodedAction{}, fmt.Errorf("reading mask bytes: %w", err)
	}

	payloadLen, err := r.ReadByte()
	if err != nil {
		return decodedAction{}, fmt.Errorf("reading payload length: %w", err)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return decodedAction{}, fmt.Errorf("reading payload: %w", err)
	}

	return decodedAction{kind: wire.ActionUpdate, localComponent: localComponent, maskBytes: maskBytes, payload: payload}, nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

