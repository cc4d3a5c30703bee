package client

import (
	"fmt"
	"io"

	"github.com/replisync/go-entity-replicator/pkg/mask"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

type fakeKind uint16

func (k fakeKind) ToU16() uint16 { return uint16(k) }

const positionKind = fakeKind(1)

type fakeReplica struct {
	kind  fakeKind
	value byte
}

func (r *fakeReplica) Kind() world.Kind { return r.kind }
func (r *fakeReplica) Write(w io.Writer) error {
	_, err := w.Write([]byte{r.value})
	return err
}
func (r *fakeReplica) WritePartial(w io.Writer, m *mask.Mask) error { return r.Write(w) }
func (r *fakeReplica) Clone() world.Replica                        { return &fakeReplica{kind: r.kind, value: r.value} }
func (r *fakeReplica) Equal(other world.Replica) bool {
	o, ok := other.(*fakeReplica)
	return ok && o.value == r.value
}

type fakeManifest struct{}

func (fakeManifest) CreateReplica(kind world.Kind, r io.Reader) (world.Replica, error) {
	var b [1]byte
	if _, err := r.Read(b[:]); err != nil {
		return nil, fmt.Errorf("reading replica byte: %w", err)
	}
	return &fakeReplica{kind: kind.(fakeKind), value: b[0]}, nil
}
func (fakeManifest) KindOf(p world.Replica) world.Kind { return p.Kind() }
func (fakeManifest) KindByID(id uint16) (world.Kind, bool) {
	if id == uint16(positionKind) {
		return positionKind, true
	}
	return nil, false
}

// fakeWorld is a minimal in-memory world.Mut for exercising the client
// manager without a real ECS.
type fakeWorld struct {
	next       world.EntityID
	entities   map[world.EntityID]bool
	components map[world.EntityID]map[uint16]world.Replica
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		entities:   make(map[world.EntityID]bool),
		components: make(map[world.EntityID]map[uint16]world.Replica),
	}
}

func (w *fakeWorld) HasEntity(e world.EntityID) bool { return w.entities[e] }
func (w *fakeWorld) Entities() []world.EntityID {
	var out []world.EntityID
	for e := range w.entities {
		out = append(out, e)
	}
	return out
}
func (w *fakeWorld) HasComponentOfKind(e world.EntityID, k world.Kind) bool {
	_, ok := w.components[e][k.ToU16()]
	return ok
}
func (w *fakeWorld) ComponentOfKind(e world.EntityID, k world.Kind) (world.Replica, bool) {
	r, ok := w.components[e][k.ToU16()]
	return r, ok
}
func (w *fakeWorld) SpawnEntity() world.EntityID {
	w.next++
	e := w.next
	w.entities[e] = true
	w.components[e] = make(map[uint16]world.Replica)
	return e
}
func (w *fakeWorld) DespawnEntity(e world.EntityID) {
	delete(w.entities, e)
	delete(w.components, e)
}
func (w *fakeWorld) InsertComponent(e world.EntityID, c world.Replica) {
	w.components[e][c.Kind().ToU16()] = c
}
func (w *fakeWorld) RemoveComponentOfKind(e world.EntityID, k world.Kind) {
	delete(w.components[e], k.ToU16())
}
func (w *fakeWorld) ComponentReadPartial(e world.EntityID, k world.Kind, maskBytes []byte, r io.Reader) error {
	var b [1]byte
	if _, err := r.Read(b[:]); err != nil {
		return err
	}
	w.components[e][k.ToU16()] = &fakeReplica{kind: k.(fakeKind), value: b[0]}
	return nil
}
func (w *fakeWorld) MirrorComponents(dst, src world.EntityID) {
	w.components[dst] = make(map[uint16]world.Replica, len(w.components[src]))
	for k, r := range w.components[src] {
		w.components[dst][k] = r.Clone()
	}
}
