package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/khushnawaj/scriptSelf-sub001/internal/protocol"
)

// GlobalRoom holds every registered connection.
const GlobalRoom = "global"

// UserRoom is the room of every connection of one identity.
func UserRoom(identity string) string { return "user:" + identity }

// Conn is a live connection as seen by the registry.
type Conn interface {
	ID() string
	UserID() string
	// Send queues env without blocking and reports whether it was accepted.
	Send(env protocol.Envelope) bool
	Close()
}

// Registry maps identities to live connections and rooms. State is in memory
// only; clients re-register after a restart.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{}
	joined map[Conn]map[string]struct{}
	log    *zap.SugaredLogger
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		rooms:  make(map[string]map[Conn]struct{}),
		joined: make(map[Conn]map[string]struct{}),
		log:    log,
	}
}

// Register joins c to its identity's room and the global room.
func (r *Registry) Register(identity string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(UserRoom(identity), c)
	r.join(GlobalRoom, c)
}

func (r *Registry) Join(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(room, c)
}

func (r *Registry) join(room string, c Conn) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[Conn]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	rooms, ok := r.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[c] = rooms
	}
	rooms[room] = struct{}{}
}

// Deregister removes c from every room it joined.
func (r *Registry) Deregister(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[c] {
		members := r.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, c)
}

// Emit delivers env once to every connection in at least one of rooms and
// returns the number of connections that accepted it.
func (r *Registry) Emit(env protocol.Envelope, rooms ...string) int {
	sent, _ := r.emit(env, rooms)
	return sent
}

// EmitRooms is Emit, reporting per target room how many of its connections
// accepted env.
func (r *Registry) EmitRooms(env protocol.Envelope, rooms ...string) map[string]int {
	_, accepted := r.emit(env, rooms)
	return accepted
}

func (r *Registry) emit(env protocol.Envelope, rooms []string) (int, map[string]int) {
	r.mu.RLock()
	targets := make(map[Conn][]string)
	seen := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		for c := range r.rooms[room] {
			targets[c] = append(targets[c], room)
		}
	}
	r.mu.RUnlock()

	sent := 0
	accepted := make(map[string]int, len(seen))
	for c, in := range targets {
		if !c.Send(env) {
			r.log.Warnw("dropping event for slow connection", "event", env.Event, "conn_id", c.ID(), "user_id", c.UserID())
			continue
		}
		sent++
		for _, room := range in {
			accepted[room]++
		}
	}
	return sent, accepted
}

// Online reports whether identity has at least one live connection.
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[UserRoom(identity)]) > 0
}

// Connections returns how many connections are registered.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.joined)
}

// Snapshot returns the registered connections.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.joined))
	for c := range r.joined {
		out = append(out, c)
	}
	return out
}
