package memory

import (
	"context"
	"strings"
	"sync"
)

// StateStore is an in-memory implementation of app.StateStore for
// single-instance rooms and tests. Change notifications are delivered
// asynchronously through a per-observer queue, so observers see writes with
// the same "eventually, in order" contract the replicated stores give.
type StateStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	nextID    int
	observers map[int]*observer
	closed    bool
}

type observer struct {
	queue chan []string
	done  chan struct{}
}

func NewStateStore() *StateStore {
	return &StateStore{
		data:      make(map[string][]byte),
		observers: make(map[int]*observer),
	}
}

func (s *StateStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, true, nil
}

func (s *StateStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	targets := s.observerList()
	s.mu.Unlock()

	notify(targets, []string{key})
	return nil
}

func (s *StateStore) SetAll(_ context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))

	s.mu.Lock()
	for key, value := range entries {
		s.data[key] = append([]byte(nil), value...)
		keys = append(keys, key)
	}
	targets := s.observerList()
	s.mu.Unlock()

	notify(targets, keys)
	return nil
}

func (s *StateStore) List(_ context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte)
	for key, raw := range s.data {
		if strings.HasPrefix(key, prefix) {
			out[key] = append([]byte(nil), raw...)
		}
	}
	return out, nil
}

func (s *StateStore) Observe(fn func(keys []string)) (cancel func()) {
	o := &observer{
		queue: make(chan []string, 64),
		done:  make(chan struct{}),
	}
	go func() {
		for {
			select {
			case keys := <-o.queue:
				fn(keys)
			case <-o.done:
				return
			}
		}
	}()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
			close(o.done)
		})
	}
}

// Close drops all observers.
func (s *StateStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	targets := s.observerList()
	s.observers = make(map[int]*observer)
	s.mu.Unlock()

	for _, o := range targets {
		close(o.done)
	}
}

func (s *StateStore) observerList() []*observer {
	targets := make([]*observer, 0, len(s.observers))
	for _, o := range s.observers {
		targets = append(targets, o)
	}
	return targets
}

// notify enqueues the changed keys per observer; a full queue sheds the
// oldest batch so a slow observer never blocks writers.
func notify(targets []*observer, keys []string) {
	for _, o := range targets {
		select {
		case o.queue <- keys:
		default:
			select {
			case <-o.queue:
			default:
			}
			select {
			case o.queue <- keys:
			default:
			}
		}
	}
}
