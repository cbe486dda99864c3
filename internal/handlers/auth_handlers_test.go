package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/challenge"
	"github.com/fathima-sithara/session-service/internal/clock"
	"github.com/fathima-sithara/session-service/internal/handlers"
	"github.com/fathima-sithara/session-service/internal/repository"
	"github.com/fathima-sithara/session-service/internal/routes"
	"github.com/fathima-sithara/session-service/internal/services"
	"github.com/fathima-sithara/session-service/internal/token"
	"github.com/fathima-sithara/session-service/internal/ws"
)

const testPhone = "+221771234567"

type testEnv struct {
	app *fiber.App
	clk *clock.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	users := repository.NewMemoryUserRepo()
	challenges := challenge.NewService(challenge.NewMemoryStore(), users, challenge.NewDevSender(logger), clk, logger)
	authority := token.NewAuthority("test-secret", clk)
	svc := services.NewAuthService(users, challenges, authority, clk, logger)
	h := handlers.NewHandler(svc, true, logger)
	presence := ws.NewServer(svc, nil, logger)

	app := fiber.New()
	routes.Setup(app, h, presence)
	return &testEnv{app: app, clk: clk}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

// registerFlow walks a phone through verification and registration and
// returns the issued token.
func (e *testEnv) registerFlow(t *testing.T, phone string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/request-verification", "", fiber.Map{"phoneNumber": phone})
	require.Equal(t, http.StatusOK, status)
	code, _ := body["developmentCode"].(string)
	require.NotEmpty(t, code)

	status, _ = e.do(t, http.MethodPost, "/api/auth/verify-code", "", fiber.Map{"phoneNumber": phone, "code": code})
	require.Equal(t, http.StatusOK, status)

	status, body = e.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"phoneNumber": phone, "password": "password123", "name": "Awa",
	})
	require.Equal(t, http.StatusCreated, status)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestRequestVerificationConflictWhenRegistered(t *testing.T) {
	e := newTestEnv(t)
	e.registerFlow(t, testPhone)

	status, body := e.do(t, http.MethodPost, "/api/auth/request-verification", "", fiber.Map{"phoneNumber": testPhone})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])
}

func TestVerifyCodeMismatchReportsAttemptsLeft(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.do(t, http.MethodPost, "/api/auth/request-verification", "", fiber.Map{"phoneNumber": testPhone})
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, http.MethodPost, "/api/auth/verify-code", "", fiber.Map{"phoneNumber": testPhone, "code": "000000"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(2), body["attemptsLeft"])
}

func TestVerifyCodeWithoutChallenge(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, http.MethodPost, "/api/auth/verify-code", "", fiber.Map{"phoneNumber": testPhone, "code": "123456"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestResendReturnsDevelopmentCode(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, http.MethodPost, "/api/auth/resend-verification", "", fiber.Map{"phoneNumber": testPhone})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["developmentCode"])
}

func TestRegisterUnverifiedPhoneForbidden(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"phoneNumber": testPhone, "password": "password123", "name": "Awa",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, false, body["success"])
}

func TestLoginSuccessAndFailure(t *testing.T) {
	e := newTestEnv(t)
	e.registerFlow(t, testPhone)

	status, body := e.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"phoneNumber": testPhone, "password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "password_hash")

	status, body = e.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"phoneNumber": testPhone, "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
}

func TestValidateAndRefresh(t *testing.T) {
	e := newTestEnv(t)
	tok := e.registerFlow(t, testPhone)

	status, body := e.do(t, http.MethodPost, "/api/auth/validate", "", fiber.Map{"token": tok})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	e.clk.Advance(time.Minute)
	status, body = e.do(t, http.MethodPost, "/api/auth/refresh", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEqual(t, tok, body["token"])
}

func TestRefreshRejectsTamperedToken(t *testing.T) {
	e := newTestEnv(t)
	tok := e.registerFlow(t, testPhone)

	tampered := tok + "AAAA"
	status, body := e.do(t, http.MethodPost, "/api/auth/refresh", tampered, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	e := newTestEnv(t)
	tok := e.registerFlow(t, testPhone)

	e.clk.Advance(token.SessionTTL + time.Millisecond)
	status, body := e.do(t, http.MethodPost, "/api/auth/refresh", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	e := newTestEnv(t)
	tok := e.registerFlow(t, testPhone)

	status, body := e.do(t, http.MethodPost, "/api/auth/logout", tok, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	// repeated, body-token and token-less logouts all succeed
	status, _ = e.do(t, http.MethodPost, "/api/auth/logout", "", fiber.Map{"token": tok})
	assert.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.do(t, http.MethodGet, "/api/user/online", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = e.do(t, http.MethodPut, "/api/user/profile", "", fiber.Map{"name": "X"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProfileUpdateAndOnlineList(t *testing.T) {
	e := newTestEnv(t)
	tok := e.registerFlow(t, testPhone)

	status, body := e.do(t, http.MethodPut, "/api/user/profile", tok, fiber.Map{"name": "Awa D.", "status": "hey there"})
	require.Equal(t, http.StatusOK, status)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Awa D.", user["name"])
	assert.Equal(t, "hey there", user["status"])

	status, body = e.do(t, http.MethodGet, "/api/user/online", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["users"])
}
