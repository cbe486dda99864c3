package client

import "sync"

// Storage keys shared by every browser context of the same origin. Removal
// or mutation of the token key is the cross-tab signal.
const (
	StorageTokenKey = "session_token"
	StorageUserKey  = "session_user"
)

// Change describes one mutation of a storage key.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Storage is a host-wide key/value medium with change notification: the
// stand-in for browser localStorage plus its storage events. Writes are
// last-write-wins; subscribers converge eventually.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	Subscribe(fn func(Change)) (unsubscribe func())
}

// MemoryStorage is an in-process loop-back implementation of Storage.
// Unlike browser storage events it also notifies the writer's own
// subscriber; handlers are expected to be idempotent against their own
// writes, which they are since they compare against held state.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
	subs   map[int]func(Change)
	nextID int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values: make(map[string]string),
		subs:   make(map[int]func(Change)),
	}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	subs := s.snapshot()
	s.mu.Unlock()
	dispatch(subs, Change{Key: key, Value: value})
}

func (s *MemoryStorage) Remove(key string) {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	subs := s.snapshot()
	s.mu.Unlock()
	if existed {
		dispatch(subs, Change{Key: key, Removed: true})
	}
}

func (s *MemoryStorage) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// snapshot must be called with the mutex held.
func (s *MemoryStorage) snapshot() []func(Change) {
	out := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// dispatch runs outside the mutex so handlers may call back into storage.
func dispatch(subs []func(Change), ch Change) {
	for _, fn := range subs {
		fn(ch)
	}
}
