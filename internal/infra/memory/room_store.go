package memory

import (
	"sync"

	"peerquiz/internal/app"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	factory app.RoomFactory
	mu      sync.RWMutex
	rooms   map[string]*app.Room
}

func NewRoomStore(factory app.RoomFactory) *RoomStore {
	return &RoomStore{
		factory: factory,
		rooms:   make(map[string]*app.Room),
	}
}

func (s *RoomStore) GetOrCreate(id string) (*app.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		return room, nil
	}
	room, err := s.factory(id)
	if err != nil {
		return nil, err
	}
	s.rooms[id] = room
	return room, nil
}

func (s *RoomStore) Get(id string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok
}

func (s *RoomStore) DeleteIfEmpty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return
	}
	if room.IsEmpty() {
		delete(s.rooms, id)
		room.Close()
	}
}
