package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/session-service/internal/models"
)

// memoryUserRepo keeps identities in memory. It is the default backend; the
// mongo repo replaces it when a database is configured.
type memoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byPhone map[string]string
}

func NewMemoryUserRepo() UserRepository {
	return &memoryUserRepo{
		byID:    make(map[string]*models.User),
		byPhone: make(map[string]string),
	}
}

func (r *memoryUserRepo) FindByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phoneNumber]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *memoryUserRepo) Save(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[user.ID]; ok && existing.PhoneNumber != user.PhoneNumber {
		delete(r.byPhone, existing.PhoneNumber)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = time.Now().UTC()
	r.byID[user.ID] = cloneUser(user)
	r.byPhone[user.PhoneNumber] = user.ID
	return nil
}

func (r *memoryUserRepo) ListOnline(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.User
	for _, u := range r.byID {
		if u.IsOnline {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastSeen != nil {
		t := *u.LastSeen
		c.LastSeen = &t
	}
	return &c
}
