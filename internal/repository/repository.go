package repository

import (
	"context"
	"errors"

	"github.com/fathima-sithara/session-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the persistence boundary for identities. The session
// state machine only ever needs lookup by phone or id plus save.
type UserRepository interface {
	FindByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	ListOnline(ctx context.Context) ([]*models.User, error)
}
