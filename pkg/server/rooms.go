package server

import (
	"sync"

	"github.com/replisync/go-entity-replicator/pkg/world"
)

// RoomKey names a room: an application-defined scoping unit users and
// entities can belong to.
type RoomKey uint64

// RoomManager tracks room membership for both users and entities,
// maintaining the reverse index alongside the forward one so either
// direction can be queried or torn down in O(room count) rather than
// a full scan.
type RoomManager struct {
	mu sync.Mutex

	roomUsers    map[RoomKey]map[UserKey]struct{}
	roomEntities map[RoomKey]map[world.EntityID]struct{}
	userRooms    map[UserKey]map[RoomKey]struct{}
	entityRooms  map[world.EntityID]map[RoomKey]struct{}
}

// NewRoomManager builds an empty RoomManager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		roomUsers:    make(map[RoomKey]map[UserKey]struct{}),
		roomEntities: make(map[RoomKey]map[world.EntityID]struct{}),
		userRooms:    make(map[UserKey]map[RoomKey]struct{}),
		entityRooms:  make(map[world.EntityID]map[RoomKey]struct{}),
	}
}

// AddUser adds user to room, creating the room if this is its first
// member.
func (r *RoomManager) AddUser(room RoomKey, user UserKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roomUsers[room] == nil {
		r.roomUsers[room] = make(map[UserKey]struct{})
	}
	r.roomUsers[room][user] = struct{}{}
	if r.userRooms[user] == nil {
		r.userRooms[user] = make(map[RoomKey]struct{})
	}
	r.userRooms[user][room] = struct{}{}
}

// RemoveUser removes user from room.
func (r *RoomManager) RemoveUser(room RoomKey, user UserKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomUsers[room], user)
	delete(r.userRooms[user], room)
}

// AddEntity adds entity to room.
func (r *RoomManager) AddEntity(room RoomKey, e world.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roomEntities[room] == nil {
		r.roomEntities[room] = make(map[world.EntityID]struct{})
	}
	r.roomEntities[room][e] = struct{}{}
	if r.entityRooms[e] == nil {
		r.entityRooms[e] = make(map[RoomKey]struct{})
	}
	r.entityRooms[e][room] = struct{}{}
}

// RemoveEntity removes entity from room.
func (r *RoomManager) RemoveEntity(room RoomKey, e world.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomEntities[room], e)
	delete(r.entityRooms[e], room)
}

// DestroyUser removes user from every room it belongs to, for use on
// disconnection.
func (r *RoomManager) DestroyUser(user UserKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.userRooms[user] {
		delete(r.roomUsers[room], user)
	}
	delete(r.userRooms, user)
}

// DestroyEntity removes entity from every room it belongs to, for use
// on despawn.
func (r *RoomManager) DestroyEntity(e world.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.entityRooms[e] {
		delete(r.roomEntities[room], e)
	}
	delete(r.entityRooms, e)
}

// InScope reports whether user and entity currently share at least one
// room, the base case of Scope before any per-connection override is
// applied.
func (r *RoomManager) InScope(user UserKey, e world.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.entityRooms[e] {
		if _, ok := r.roomUsers[room][user]; ok {
			return true
		}
	}
	return false
}

// EntitiesInScope returns every entity sharing a room with user, in no
// particular order.
func (r *RoomManager) EntitiesInScope(user UserKey) []world.EntityID {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[world.EntityID]struct{})
	for room := range r.userRooms[user] {
		for e := range r.roomEntities[room] {
			seen[e] = struct{}{}
		}
	}
	out := make([]world.EntityID, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	return out
}
