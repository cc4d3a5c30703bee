package client

import (
	"sync"

	"github.com/replisync/go-entity-replicator/pkg/pawn"
	"github.com/replisync/go-entity-replicator/pkg/seqbuf"
	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Command is one locally-issued input, recorded so it can be replayed
// if a later correction shows the prediction it produced was wrong.
type Command struct {
	Tick    uint16
	Payload []byte
}

// Replayer is the hook a Manager calls into when CheckUpdate reports a
// prediction mismatch: replay every recorded command with a tick
// strictly greater than the corrected tick, in order, onto the
// now-authoritative state.
type Replayer interface {
	ReplayAfter(tick uint16)
}

// Apply re-derives a predicted state by running one command against
// it. Supplied by the application; the receiver only knows how to
// store and order commands, not how to interpret their payloads.
type Apply func(state *pawn.EntityCopy, cmd Command) *pawn.EntityCopy

// CommandReceiver buffers locally-issued commands for a single pawn
// entity and, on a prediction mismatch, replays every command newer
// than the corrected tick against the corrected state.
type CommandReceiver struct {
	mu      sync.Mutex
	history []Command // ascending by Tick; oldest evicted once past capacity
	cap     int
	apply   Apply
	pawns   *pawn.Store
	entity  world.EntityID
}

// NewCommandReceiver builds a receiver for entity, holding up to
// capacity commands, replaying through apply against the pawn store's
// shadow state.
func NewCommandReceiver(capacity int, entity world.EntityID, pawns *pawn.Store, apply Apply) *CommandReceiver {
	return &CommandReceiver{cap: capacity, apply: apply, pawns: pawns, entity: entity}
}

// Record stores a newly-issued command, evicting the oldest once the
// receiver is at capacity.
func (c *CommandReceiver) Record(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, cmd)
	if len(c.history) > c.cap {
		c.history = c.history[len(c.history)-c.cap:]
	}
}

// ReplayAfter re-runs every recorded command with Tick > tick against
// the pawn's current (now-corrected) shadow state, mutating it in
// place command by command so the final shadow reflects every input
// the server hasn't yet acknowledged.
func (c *CommandReceiver) ReplayAfter(tick uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.pawns.Shadow(c.entity)
	if !ok {
		return
	}
	for _, cmd := range c.history {
		if seqbuf.WrappingDiff(cmd.Tick, tick) <= 0 {
			continue
		}
		state = c.apply(state, cmd)
	}
	c.pawns.SetShadow(c.entity, state)
}
