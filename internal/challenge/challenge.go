package challenge

import (
	"context"
	"errors"
	"time"
)

// Challenge is a pending phone verification: one per phone number, a new
// request overwrites the previous one.
type Challenge struct {
	PhoneNumber string    `json:"phone_number"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}

var (
	ErrChallengeNotFound = errors.New("no verification pending for this number")
	ErrChallengeExpired  = errors.New("verification code has expired")
	ErrTooManyAttempts   = errors.New("too many failed attempts")
	ErrCodeMismatch      = errors.New("incorrect verification code")
	ErrAlreadyRegistered = errors.New("phone number already registered")
)

// Store holds at most one challenge per phone number.
type Store interface {
	Put(ctx context.Context, ch *Challenge) error
	Get(ctx context.Context, phoneNumber string) (*Challenge, error)
	IncrementAttempts(ctx context.Context, phoneNumber string) (int, error)
	Delete(ctx context.Context, phoneNumber string) error
}
