// Package room tracks which participants belong to which named room and
// enforces the two-party capacity rule. The registry owns membership
// exclusively; connections themselves belong to the transport layer.
package room

import "sync"

// Capacity is the hard cap on members per room.
const Capacity = 2

// Outcome is the result of a create-or-join request.
type Outcome int

const (
	// OutcomeCreated means the room was empty or absent and the caller is now its sole member.
	OutcomeCreated Outcome = iota
	// OutcomeJoined means the caller became the second member.
	OutcomeJoined
	// OutcomeFull means the room already had two members and the caller was rejected.
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeJoined:
		return "joined"
	case OutcomeFull:
		return "full"
	}
	return "unknown"
}

// Registry maps room names to member sets. Rooms are created implicitly on
// first join and deleted implicitly when the last member leaves; nothing is
// ever persisted.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]map[string]struct{}
	members map[string]string // participant id -> room name
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]struct{}),
		members: make(map[string]string),
	}
}

// CreateOrJoin adds participant id to the named room. The outcome is a pure
// function of current membership excluding the caller, which makes the call
// idempotent per participant: re-joining never double-counts. A participant
// belongs to at most one room, so joining a new room leaves the old one; a
// rejected join leaves all membership untouched, including the caller's own.
func (r *Registry) CreateOrJoin(name, id string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[name]
	others := len(members)
	if _, already := members[id]; already {
		others--
	}

	if others >= Capacity {
		return OutcomeFull
	}

	if prev, ok := r.members[id]; ok && prev != name {
		r.leaveLocked(id, prev)
	}

	if members == nil {
		members = make(map[string]struct{}, Capacity)
		r.rooms[name] = members
	}
	members[id] = struct{}{}
	r.members[id] = name

	if others == 0 {
		return OutcomeCreated
	}
	return OutcomeJoined
}

// Leave removes the participant from whatever room it occupies. It reports
// the room left and whether that room is now gone. Unknown participants are
// a no-op.
func (r *Registry) Leave(id string) (name string, emptied bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok = r.members[id]
	if !ok {
		return "", false, false
	}
	emptied = r.leaveLocked(id, name)
	return name, emptied, true
}

func (r *Registry) leaveLocked(id, name string) (emptied bool) {
	delete(r.members, id)
	members := r.rooms[name]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, name)
		return true
	}
	return false
}

// RoomOf reports the room the participant currently occupies.
func (r *Registry) RoomOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.members[id]
	return name, ok
}

// Peers returns the other members of the participant's room, if any.
func (r *Registry) Peers(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.members[id]
	if !ok {
		return nil
	}
	peers := make([]string, 0, Capacity-1)
	for member := range r.rooms[name] {
		if member != id {
			peers = append(peers, member)
		}
	}
	return peers
}

// Members returns the current members of a room.
func (r *Registry) Members(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.rooms[name]))
	for member := range r.rooms[name] {
		out = append(out, member)
	}
	return out
}

// Rooms returns the number of live rooms.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
