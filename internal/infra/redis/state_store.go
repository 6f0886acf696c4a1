package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore is a Redis-backed implementation of app.StateStore. Each room
// maps to one hash; writers publish the changed keys on the room's pub/sub
// channel, so observers on every service instance see the same change feed.
// Per-key last-write-wins is whatever Redis ordering gives concurrent
// writers; that matches the replicated-mapping contract.
type StateStore struct {
	client *redis.Client
	room   string
	ttl    time.Duration
	pubsub *redis.PubSub

	mu        sync.Mutex
	nextID    int
	observers map[int]func(keys []string)
}

// NewStateStore builds the store and starts listening for change
// notifications. Close it when the room is torn down.
func NewStateStore(client *redis.Client, room string, ttl time.Duration) *StateStore {
	s := &StateStore{
		client:    client,
		room:      room,
		ttl:       ttl,
		observers: make(map[int]func(keys []string)),
	}
	s.pubsub = client.Subscribe(context.Background(), s.channel())
	go s.listen()
	return s
}

func (s *StateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.HGet(ctx, s.hashKey(), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state get %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *StateStore) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, map[string][]byte{key: value})
}

func (s *StateStore) SetAll(ctx context.Context, entries map[string][]byte) error {
	return s.write(ctx, entries)
}

// write applies the batch and publishes the changed keys in one transaction,
// so cross-instance observers never see a partial publishRound.
func (s *StateStore) write(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	fields := make([]interface{}, 0, len(entries)*2)
	for key, value := range entries {
		keys = append(keys, key)
		fields = append(fields, key, value)
	}

	payload, err := json.Marshal(keys)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hashKey(), fields...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.hashKey(), s.ttl)
	}
	pipe.Publish(ctx, s.channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state write: %w", err)
	}
	return nil
}

func (s *StateStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	all, err := s.client.HGetAll(ctx, s.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("state list: %w", err)
	}
	out := make(map[string][]byte)
	for key, raw := range all {
		if strings.HasPrefix(key, prefix) {
			out[key] = []byte(raw)
		}
	}
	return out, nil
}

func (s *StateStore) Observe(fn func(keys []string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Close stops the change-feed subscription.
func (s *StateStore) Close() error {
	return s.pubsub.Close()
}

func (s *StateStore) listen() {
	for msg := range s.pubsub.Channel() {
		var keys []string
		if err := json.Unmarshal([]byte(msg.Payload), &keys); err != nil {
			continue
		}
		s.mu.Lock()
		targets := make([]func([]string), 0, len(s.observers))
		for _, fn := range s.observers {
			targets = append(targets, fn)
		}
		s.mu.Unlock()
		for _, fn := range targets {
			fn(keys)
		}
	}
}

func (s *StateStore) hashKey() string {
	return "room:" + s.room + ":state"
}

func (s *StateStore) channel() string {
	return "room:" + s.room + ":events"
}
