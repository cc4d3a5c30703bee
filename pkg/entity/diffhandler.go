package entity

import (
	"sync"

	"github.com/replisync/go-entity-replicator/pkg/mask"
)

// DiffHandler is the server-global registry of per-component,
// per-connection dirty-bit windows. Property mutators OR bits into
// every connection's window for a component; each connection's entity
// manager later snapshots (clones) and clears its own window once the
// bits have been folded into an outgoing UpdateComponent action.
//
// Concurrency model: SetBit is called from the single application
// thread driving property mutation; Snapshot/Clear/Or are called from
// that same thread while ticking connections. There is no
// cross-goroutine contention by construction, so a single mutex
// protecting the whole table is enough -- it exists to guard against
// accidental concurrent use, not to serialize a hot path.
type DiffHandler struct {
	mu      sync.Mutex
	lengths map[uint64]int
	windows map[uint64]map[uint64]*mask.Mask // componentKey -> connID -> window
}

// NewDiffHandler constructs an empty DiffHandler.
func NewDiffHandler() *DiffHandler {
	return &DiffHandler{
		lengths: make(map[uint64]int),
		windows: make(map[uint64]map[uint64]*mask.Mask),
	}
}

// Register allocates a zeroed mask of the given bit length for a
// newly created component. Mask length is immutable once registered.
func (d *DiffHandler) Register(componentKey uint64, length int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lengths[componentKey] = length
	d.windows[componentKey] = make(map[uint64]*mask.Mask)
}

// Deregister frees a component's mask and every connection's window
// for it.
func (d *DiffHandler) Deregister(componentKey uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lengths, componentKey)
	delete(d.windows, componentKey)
}

// AddConnection opens a fresh, empty window for connID on every
// currently registered component it does not already have one for.
// Calling this again for a connection already present is a no-op per
// component, so a connection joining scope never loses dirty bits
// accumulated on components it already watches.
func (d *DiffHandler) AddConnection(connID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, length := range d.lengths {
		if _, ok := d.windows[key][connID]; ok {
			continue
		}
		d.windows[key][connID] = mask.New(length)
	}
}

// RemoveConnection discards connID's window across every component,
// e.g. on disconnect.
func (d *DiffHandler) RemoveConnection(connID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, byConn := range d.windows {
		delete(byConn, connID)
	}
}

func (d *DiffHandler) windowLocked(componentKey, connID uint64) *mask.Mask {
	byConn, ok := d.windows[componentKey]
	if !ok {
		return nil
	}
	w, ok := byConn[connID]
	if !ok {
		w = mask.New(d.lengths[componentKey])
		byConn[connID] = w
	}
	return w
}

// SetBit ORs a single dirty bit into every connection's window for
// componentKey, the fan-out a property mutator triggers on write.
func (d *DiffHandler) SetBit(componentKey uint64, bit int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byConn, ok := d.windows[componentKey]
	if !ok {
		return
	}
	for _, w := range byConn {
		w.SetBit(bit)
	}
}

// Snapshot clones connID's current window for componentKey without
// clearing it.
func (d *DiffHandler) Snapshot(componentKey, connID uint64) *mask.Mask {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(componentKey, connID)
	if w == nil {
		return nil
	}
	return w.Clone()
}

// IsEmpty reports whether connID's window for componentKey has no
// dirty bits set.
func (d *DiffHandler) IsEmpty(componentKey, connID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(componentKey, connID)
	return w == nil || w.IsEmpty()
}

// Clear zeroes connID's window for componentKey, e.g. once its bits
// have been popped into an outgoing action.
func (d *DiffHandler) Clear(componentKey, connID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w := d.windowLocked(componentKey, connID); w != nil {
		w.Clear()
	}
}

// Or folds bits back into connID's window for componentKey, used on
// drop reconciliation to restore the portion of an update that was
// not re-covered by a later still-in-flight update.
func (d *DiffHandler) Or(componentKey, connID uint64, bits *mask.Mask) {
	if bits == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windowLocked(componentKey, connID)
	if w != nil {
		w.Or(bits)
	}
}
