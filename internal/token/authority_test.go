package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/session-service/internal/clock"
)

func newTestAuthority(t *testing.T) (*Authority, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewAuthority("test-secret", clk), clk
}

func TestIssueValidateRoundTrip(t *testing.T) {
	a, clk := newTestAuthority(t)

	signed, exp, err := a.Issue("user-1")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(SessionTTL).Unix(), exp.Unix())

	uid, err := a.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	// still valid shortly before expiry
	clk.Advance(SessionTTL - time.Minute)
	uid, err = a.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestValidateExpired(t *testing.T) {
	a, clk := newTestAuthority(t)

	signed, _, err := a.Issue("user-1")
	require.NoError(t, err)

	clk.Advance(SessionTTL + time.Millisecond)

	_, err = a.Validate(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTamperedToken(t *testing.T) {
	a, _ := newTestAuthority(t)

	signed, _, err := a.Issue("user-1")
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = a.Validate(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateWrongSecret(t *testing.T) {
	a, clk := newTestAuthority(t)
	other := NewAuthority("another-secret", clk)

	signed, _, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = a.Validate(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateMalformedInput(t *testing.T) {
	a, _ := newTestAuthority(t)

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c.d", "...."} {
		_, err := a.Validate(tok)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", tok)
	}
}

func TestRefreshMintsIndependentToken(t *testing.T) {
	a, clk := newTestAuthority(t)

	first, _, err := a.Issue("user-1")
	require.NoError(t, err)

	clk.Advance(time.Hour)
	second, exp, err := a.Issue("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// the new token has its own full lifetime
	assert.Equal(t, clk.Now().Add(SessionTTL).Unix(), exp.Unix())
}
