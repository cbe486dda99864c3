package challenge

import (
	"context"
	"sync"
)

// memoryStore is the default challenge backend: pure state, no expiry logic
// of its own (the service owns the clock).
type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

func NewMemoryStore() Store {
	return &memoryStore{challenges: make(map[string]*Challenge)}
}

func (s *memoryStore) Put(ctx context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.challenges[ch.PhoneNumber] = &cp
	return nil
}

func (s *memoryStore) Get(ctx context.Context, phoneNumber string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[phoneNumber]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *memoryStore) IncrementAttempts(ctx context.Context, phoneNumber string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[phoneNumber]
	if !ok {
		return 0, ErrChallengeNotFound
	}
	ch.Attempts++
	return ch.Attempts, nil
}

func (s *memoryStore) Delete(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, phoneNumber)
	return nil
}
