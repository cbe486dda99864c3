package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fathima-sithara/session-service/internal/challenge"
	"github.com/fathima-sithara/session-service/internal/clock"
	"github.com/fathima-sithara/session-service/internal/models"
	"github.com/fathima-sithara/session-service/internal/repository"
	"github.com/fathima-sithara/session-service/internal/token"
)

// AuthService owns registration, login and the session token lifecycle.
// Challenge verification gates registration: a phone number must complete a
// challenge before Register will accept it.
type AuthService struct {
	users      repository.UserRepository
	challenges *challenge.Service
	authority  *token.Authority
	clock      clock.Clock
	logger     *zap.Logger

	mu       sync.Mutex
	verified map[string]struct{}
}

func NewAuthService(
	users repository.UserRepository,
	challenges *challenge.Service,
	authority *token.Authority,
	clk clock.Clock,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		challenges: challenges,
		authority:  authority,
		clock:      clk,
		logger:     logger,
		verified:   make(map[string]struct{}),
	}
}

// RequestVerification starts a challenge for an unregistered phone number.
// The returned code is for the development channel only.
func (s *AuthService) RequestVerification(ctx context.Context, phoneNumber string) (string, error) {
	return s.challenges.Request(ctx, phoneNumber)
}

// ResendVerification regenerates the code unconditionally.
func (s *AuthService) ResendVerification(ctx context.Context, phoneNumber string) (string, error) {
	return s.challenges.Resend(ctx, phoneNumber)
}

// VerifyCode checks a submitted code and, on success, marks the phone number
// as verified so registration can proceed.
func (s *AuthService) VerifyCode(ctx context.Context, phoneNumber, code string) (int, error) {
	attemptsLeft, err := s.challenges.Verify(ctx, phoneNumber, code)
	if err != nil {
		return attemptsLeft, err
	}
	s.mu.Lock()
	s.verified[phoneNumber] = struct{}{}
	s.mu.Unlock()
	return 0, nil
}

// Register creates an identity for a verified phone number and mints its
// first session token.
func (s *AuthService) Register(ctx context.Context, phoneNumber, password, name string) (string, *models.User, error) {
	s.mu.Lock()
	_, ok := s.verified[phoneNumber]
	s.mu.Unlock()
	if !ok {
		return "", nil, ErrPhoneNotVerified
	}

	if _, err := s.users.FindByPhone(ctx, phoneNumber); err == nil {
		return "", nil, ErrAlreadyRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return "", nil, fmt.Errorf("lookup phone: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		PhoneNumber:  phoneNumber,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, user); err != nil {
		return "", nil, fmt.Errorf("save user: %w", err)
	}

	s.mu.Lock()
	delete(s.verified, phoneNumber)
	s.mu.Unlock()

	signed, _, err := s.authority.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return signed, user, nil
}

// Login authenticates a phone/password pair and mints a session token.
func (s *AuthService) Login(ctx context.Context, phoneNumber, password string) (string, *models.User, error) {
	user, err := s.users.FindByPhone(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup phone: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	signed, _, err := s.authority.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return signed, user, nil
}

// ValidateToken resolves a token to its user.
func (s *AuthService) ValidateToken(ctx context.Context, tokenStr string) (*models.User, error) {
	userID, err := s.authority.Validate(tokenStr)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Refresh validates a token and mints a fresh one for the same user. The old
// token is not extended or revoked; it simply ages out.
func (s *AuthService) Refresh(ctx context.Context, tokenStr string) (string, *models.User, error) {
	user, err := s.ValidateToken(ctx, tokenStr)
	if err != nil {
		return "", nil, err
	}
	signed, _, err := s.authority.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return signed, user, nil
}

// Logout marks the token's user offline. It never fails: an invalid or
// absent token still counts as a successful logout.
func (s *AuthService) Logout(ctx context.Context, tokenStr string) {
	if tokenStr == "" {
		return
	}
	userID, err := s.authority.Validate(tokenStr)
	if err != nil {
		return
	}
	if err := s.SetOffline(ctx, userID); err != nil {
		s.logger.Warn("logout presence update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// SetOnline marks a user online and returns the updated identity.
func (s *AuthService) SetOnline(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.IsOnline = true
	user.LastSeen = nil
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetOffline marks a user offline and stamps last-seen.
func (s *AuthService) SetOffline(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	user.IsOnline = false
	user.LastSeen = &now
	return s.users.Save(ctx, user)
}

// UpdateProfile applies mutable profile fields.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileReq) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Status != "" {
		user.Status = req.Status
	}
	if req.Avatar != "" {
		user.Avatar = req.Avatar
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// OnlineUsers lists users currently marked online.
func (s *AuthService) OnlineUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.ListOnline(ctx)
}
