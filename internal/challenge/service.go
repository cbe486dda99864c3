package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/clock"
	"github.com/fathima-sithara/session-service/internal/repository"
)

const (
	// CodeTTL is how long a verification code stays valid.
	CodeTTL = 5 * time.Minute

	// MaxAttempts is the number of failed verifications before the
	// challenge is invalidated.
	MaxAttempts = 3

	codeLength = 6
)

// Sender delivers a verification code to its phone number. Production SMS
// delivery is out of scope; the dev sender only logs.
type Sender interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// NewDevSender returns a Sender that logs codes instead of transmitting
// them. The code is additionally surfaced in dev-mode HTTP responses.
func NewDevSender(logger *zap.Logger) Sender {
	return devSender{logger: logger}
}

type devSender struct {
	logger *zap.Logger
}

func (d devSender) SendCode(ctx context.Context, phoneNumber, code string) error {
	d.logger.Info("verification code issued",
		zap.String("phone_number", phoneNumber),
		zap.String("code", code),
	)
	return nil
}

// Service issues and verifies phone-number possession challenges.
type Service struct {
	store  Store
	users  repository.UserRepository
	sender Sender
	clock  clock.Clock
	logger *zap.Logger
}

func NewService(store Store, users repository.UserRepository, sender Sender, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		users:  users,
		sender: sender,
		clock:  clk,
		logger: logger,
	}
}

// Request creates a fresh challenge for an unregistered phone number,
// replacing any existing one. The generated code is returned so the caller
// can expose it on the development channel.
func (s *Service) Request(ctx context.Context, phoneNumber string) (string, error) {
	if _, err := s.users.FindByPhone(ctx, phoneNumber); err == nil {
		return "", ErrAlreadyRegistered
	}
	return s.issue(ctx, phoneNumber)
}

// Resend regenerates the code and resets attempts and expiry, regardless of
// prior state. There is deliberately no cooldown here.
func (s *Service) Resend(ctx context.Context, phoneNumber string) (string, error) {
	return s.issue(ctx, phoneNumber)
}

func (s *Service) issue(ctx context.Context, phoneNumber string) (string, error) {
	code, err := generateCode(codeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	ch := &Challenge{
		PhoneNumber: phoneNumber,
		Code:        code,
		ExpiresAt:   s.clock.Now().Add(CodeTTL),
		Attempts:    0,
	}
	if err := s.store.Put(ctx, ch); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	if err := s.sender.SendCode(ctx, phoneNumber, code); err != nil {
		s.logger.Warn("code delivery failed", zap.String("phone_number", phoneNumber), zap.Error(err))
	}
	return code, nil
}

// Verify checks a submitted code. On mismatch the returned attemptsLeft
// reports how many tries remain; it is zero for every other outcome.
// A successful verification consumes the challenge and has no other side
// effect: creating the identity is the caller's responsibility.
func (s *Service) Verify(ctx context.Context, phoneNumber, code string) (attemptsLeft int, err error) {
	ch, err := s.store.Get(ctx, phoneNumber)
	if err != nil {
		return 0, err
	}
	if s.clock.Now().After(ch.ExpiresAt) {
		_ = s.store.Delete(ctx, phoneNumber)
		return 0, ErrChallengeExpired
	}
	if ch.Attempts >= MaxAttempts {
		_ = s.store.Delete(ctx, phoneNumber)
		return 0, ErrTooManyAttempts
	}
	if ch.Code != code {
		attempts, ierr := s.store.IncrementAttempts(ctx, phoneNumber)
		if ierr != nil {
			return 0, ierr
		}
		if attempts >= MaxAttempts {
			// the final failure consumes the challenge; the next attempt
			// finds nothing rather than an exhausted counter
			_ = s.store.Delete(ctx, phoneNumber)
			return 0, ErrCodeMismatch
		}
		return MaxAttempts - attempts, ErrCodeMismatch
	}
	if err := s.store.Delete(ctx, phoneNumber); err != nil {
		return 0, fmt.Errorf("consume challenge: %w", err)
	}
	return 0, nil
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		b[i] = digits[n.Int64()]
	}
	return string(b), nil
}
