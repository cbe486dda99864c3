package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/models"
)

// fakeAPI is a scripted stand-in for the auth service.
type fakeAPI struct {
	mu            sync.Mutex
	tokenSeq      int
	refreshStatus int // 0 means succeed with a fresh token
	refreshCount  int
	logoutCount   int
	// echoAccepts, when set, is the only bearer /api/echo answers 200 to;
	// everything else gets 401
	echoAccepts string
}

func (f *fakeAPI) nextToken() string {
	f.tokenSeq++
	return fmt.Sprintf("tok-%d", f.tokenSeq)
}

func (f *fakeAPI) user() *models.User {
	return &models.User{ID: "user-1", PhoneNumber: "+221771234567", Name: "Awa"}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		tok := f.nextToken()
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": tok, "user": f.user()})
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshCount++
		status := f.refreshStatus
		var tok string
		if status == 0 {
			tok = f.nextToken()
		}
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"success": false, "message": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": tok, "user": f.user()})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logoutCount++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		accepts := f.echoAccepts
		f.mu.Unlock()
		if accepts == "" || r.Header.Get("Authorization") != "Bearer "+accepts {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	return mux
}

func (f *fakeAPI) setRefreshStatus(status int) {
	f.mu.Lock()
	f.refreshStatus = status
	f.mu.Unlock()
}

func (f *fakeAPI) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCount
}

func (f *fakeAPI) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCount
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type counters struct {
	expired   atomic.Int32
	loggedOut atomic.Int32
}

func (c *counters) callbacks() Callbacks {
	return Callbacks{
		OnSessionExpired: func() { c.expired.Add(1) },
		OnUserLoggedOut:  func() { c.loggedOut.Add(1) },
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) (*SessionClient, *MemoryStorage, *counters, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	storage := NewMemoryStorage()
	cnt := &counters{}
	base := []Option{
		WithCallbacks(cnt.callbacks()),
		WithHTTPTimeout(2*time.Second, 50*time.Millisecond),
		WithRefreshInterval(time.Hour), // ticks driven manually unless overridden
	}
	c := NewSessionClient(srv.URL, storage, zap.NewNop(), append(base, opts...)...)
	return c, storage, cnt, srv
}

func TestLoginPersistsSession(t *testing.T) {
	api := &fakeAPI{}
	c, storage, _, _ := newTestClient(t, api)

	user, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "tok-1", c.Token())

	tok, ok := storage.Get(StorageTokenKey)
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	raw, ok := storage.Get(StorageUserKey)
	require.True(t, ok)
	var stored models.User
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "user-1", stored.ID)
}

func TestRefreshReplacesToken(t *testing.T) {
	api := &fakeAPI{}
	c, storage, _, _ := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, "tok-2", c.Token())

	tok, _ := storage.Get(StorageTokenKey)
	assert.Equal(t, "tok-2", tok)
}

func TestRefreshAuthFailureExpiresSessionOnce(t *testing.T) {
	api := &fakeAPI{}
	c, storage, cnt, _ := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	api.setRefreshStatus(http.StatusUnauthorized)

	err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, int32(1), cnt.expired.Load())

	_, ok := storage.Get(StorageTokenKey)
	assert.False(t, ok)

	// the loop is stopped and the state cleared, so nothing fires again
	err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(1), cnt.expired.Load())
}

func TestRefreshLoopExpiresExactlyOnce(t *testing.T) {
	api := &fakeAPI{}
	c, _, cnt, _ := newTestClient(t, api, WithRefreshInterval(20*time.Millisecond))

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	api.setRefreshStatus(http.StatusUnauthorized)

	require.Eventually(t, func() bool {
		return cnt.expired.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// several intervals later the signal has still fired only once
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), cnt.expired.Load())
	assert.Equal(t, StateUnauthenticated, c.State())
}

func TestRefreshTransportFailureKeepsSession(t *testing.T) {
	api := &fakeAPI{}
	c, _, cnt, srv := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	// network gone: the session must survive and be retried later
	srv.Close()

	err = c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "tok-1", c.Token())
	assert.Equal(t, int32(0), cnt.expired.Load())
}

func TestLogoutIsIdempotent(t *testing.T) {
	api := &fakeAPI{}
	c, storage, _, _ := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	c.Logout(context.Background())
	assert.Equal(t, StateUnauthenticated, c.State())
	_, ok := storage.Get(StorageTokenKey)
	assert.False(t, ok)

	// second logout with no token present: no panic, still unauthenticated
	c.Logout(context.Background())
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, 1, api.logouts())
}

func TestAuthenticatedRequestRefreshesAndRetriesOnce(t *testing.T) {
	api := &fakeAPI{}
	c, _, _, _ := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	// only the post-refresh token is accepted
	api.mu.Lock()
	api.echoAccepts = "tok-2"
	api.mu.Unlock()

	err = c.AuthenticatedRequest(context.Background(), http.MethodPost, "/api/echo", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, api.refreshes())
	assert.Equal(t, "tok-2", c.Token())
}

func TestAuthenticatedRequestSecondFailureExpires(t *testing.T) {
	api := &fakeAPI{}
	c, _, cnt, _ := newTestClient(t, api)

	_, err := c.Login(context.Background(), "+221771234567", "password123")
	require.NoError(t, err)

	// echo never accepts anything; refresh succeeds, retry still fails
	err = c.AuthenticatedRequest(context.Background(), http.MethodPost, "/api/echo", nil, nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 1, api.refreshes())
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Equal(t, int32(1), cnt.expired.Load())
}

func TestRestoreFromStorage(t *testing.T) {
	storage := NewMemoryStorage()
	user := &models.User{ID: "user-1", PhoneNumber: "+221771234567"}
	b, err := json.Marshal(user)
	require.NoError(t, err)
	storage.Set(StorageUserKey, string(b))
	storage.Set(StorageTokenKey, "restored-token")

	c := NewSessionClient("http://127.0.0.1:0", storage, zap.NewNop(),
		WithRefreshInterval(time.Hour))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "restored-token", c.Token())
	require.NotNil(t, c.CurrentUser())
	assert.Equal(t, "user-1", c.CurrentUser().ID)
}

func TestRestoreMalformedUserMeansNoSession(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Set(StorageUserKey, "{not json")
	storage.Set(StorageTokenKey, "restored-token")

	c := NewSessionClient("http://127.0.0.1:0", storage, zap.NewNop())
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Empty(t, c.Token())
}
