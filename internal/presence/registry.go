// Package presence tracks which connections are in which room, and under
// what display name. Nothing here is persisted.
package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string // room -> connection -> display name
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]string)}
}

// Join registers connID in roomID, replacing its display name if it was
// already there.
func (r *Registry) Join(roomID, connID, displayName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]string)
		r.rooms[roomID] = members
	}
	members[connID] = displayName
	return dedupe(members)
}

// Leave removes connID from roomID. Empty rooms are dropped.
func (r *Registry) Leave(roomID, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return []string{}
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return []string{}
	}
	return dedupe(members)
}

// SetActive joins or leaves depending on isActive.
func (r *Registry) SetActive(roomID, connID, displayName string, isActive bool) []string {
	if isActive {
		return r.Join(roomID, connID, displayName)
	}
	return r.Leave(roomID, connID)
}

// LeaveAll removes connID from every room and returns the rooms it was in.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for roomID, members := range r.rooms {
		if _, ok := members[connID]; !ok {
			continue
		}
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
		left = append(left, roomID)
	}
	sort.Strings(left)
	return left
}

// Members returns the sorted, deduplicated display names in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return dedupe(r.rooms[roomID])
}

func (r *Registry) IsMember(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// RoomCount returns the number of rooms with at least one connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func dedupe(members map[string]string) []string {
	names := lo.Uniq(lo.Values(members))
	sort.Strings(names)
	return names
}
