package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/session-service/internal/clock"
)

// SessionTTL is the lifetime of an issued session token. Refresh mints a new
// token rather than extending an existing one.
const SessionTTL = 15 * 24 * time.Hour

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims binds a session token to a user id.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authority issues and validates signed session tokens. Validity is purely a
// function of signature and expiry; there is no revocation list.
type Authority struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewAuthority(secret string, clk clock.Clock) *Authority {
	return &Authority{
		secret: []byte(secret),
		ttl:    SessionTTL,
		clock:  clk,
	}
}

// Issue mints a token for userID, embedding issuance and expiry times.
func (a *Authority) Issue(userID string) (string, time.Time, error) {
	now := a.clock.Now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate returns the user id a token was issued for. Malformed, unsigned
// or tampered input yields ErrTokenInvalid; a valid signature past its
// expiry yields ErrTokenExpired. It never panics on bad input.
func (a *Authority) Validate(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}
