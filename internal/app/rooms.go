package app

import "sync"

// Room ties one session's coordinator to the infrastructure it runs on. The
// transport layer attaches a connection per participant; when the last one
// detaches the room's backing resources (oracle worker, store subscription)
// are released via the close hook.
type Room struct {
	ID          string
	Coordinator *Coordinator

	mu      sync.Mutex
	conns   int
	closeFn func()
	closed  bool
}

// NewRoom builds a room; closeFn may be nil.
func NewRoom(id string, coordinator *Coordinator, closeFn func()) *Room {
	return &Room{ID: id, Coordinator: coordinator, closeFn: closeFn}
}

// Attach registers one live connection.
func (r *Room) Attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns++
}

// Detach unregisters one connection.
func (r *Room) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns > 0 {
		r.conns--
	}
}

// IsEmpty reports whether no connections remain.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns == 0
}

// Close releases the room's backing resources once.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.closeFn != nil {
		r.closeFn()
	}
}

// RoomFactory assembles a room's store, oracle and coordinator.
type RoomFactory func(id string) (*Room, error)

// RoomRepository abstracts how live rooms are tracked.
type RoomRepository interface {
	GetOrCreate(id string) (*Room, error)
	Get(id string) (*Room, bool)
	DeleteIfEmpty(id string)
}
