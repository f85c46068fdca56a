package room

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

// Registry maps live room names to rooms.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	maxMembers int
}

// NewRegistry creates an empty registry whose rooms admit maxMembers each.
func NewRegistry(maxMembers int) *Registry {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		maxMembers: maxMembers,
	}
}

// Create inserts an empty room owned by hostToken. It fails with Conflict when
// the name is already live.
func (r *Registry) Create(name, hostToken string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return nil, apperrors.WithMetadata(apperrors.CodeConflict, fmt.Sprintf("room %q already exists", name), map[string]string{
			"Room": name,
		})
	}
	room := New(name, hostToken, r.maxMembers)
	r.rooms[name] = room
	return room, nil
}

// Get returns the live room called name or a NotFound error.
func (r *Registry) Get(name string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("room %q not found", name), map[string]string{
			"Room": name,
		})
	}
	return room, nil
}

// Delete removes name if present.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	delete(r.rooms, name)
	r.mu.Unlock()
}

// Remove deletes name only while it still maps to room, so a late teardown
// never removes a room re-created under the same name.
func (r *Registry) Remove(name string, room *Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[name]; ok && current == room {
		delete(r.rooms, name)
		return true
	}
	return false
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Names returns the live room names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
