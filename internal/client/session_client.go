package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/models"
)

// RefreshInterval is how often an authenticated client silently renews its
// token.
const RefreshInterval = 5 * time.Minute

// State of the session held by one browser context.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

var (
	// ErrTransport marks network-level failures: retried on the next tick,
	// never treated as session expiry.
	ErrTransport = errors.New("transport failure")

	// ErrSessionExpired is terminal: the authority rejected our token.
	ErrSessionExpired = errors.New("session expired")

	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRequestFailed    = errors.New("request failed")
)

// Callbacks surface terminal session transitions to the presentation layer.
type Callbacks struct {
	OnSessionExpired func()
	OnUserLoggedOut  func()
}

type apiResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Token        string       `json:"token"`
	User         *models.User `json:"user"`
	AttemptsLeft *int         `json:"attemptsLeft"`
	DevCode      string       `json:"developmentCode"`
}

// SessionClient holds the active token/user pair for one context, mirrors it
// into shared storage, and silently refreshes it while authenticated. All
// session fields are guarded by one mutex; the refresh loop is a single
// goroutine whose ticks run synchronously and so never overlap.
type SessionClient struct {
	baseURL   string
	http      *httpClient
	storage   Storage
	logger    *zap.Logger
	callbacks Callbacks
	interval  time.Duration

	mu         sync.Mutex
	state      State
	token      string
	user       *models.User
	generation int
	stopLoop   chan struct{}
}

type Option func(*SessionClient)

func WithCallbacks(cb Callbacks) Option {
	return func(c *SessionClient) { c.callbacks = cb }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(c *SessionClient) { c.interval = d }
}

func WithHTTPTimeout(timeout, retryMaxElapsed time.Duration) Option {
	return func(c *SessionClient) { c.http = newHTTPClient(timeout, retryMaxElapsed) }
}

// NewSessionClient restores any session found in shared storage and, if one
// exists, resumes the silent-refresh loop.
func NewSessionClient(baseURL string, storage Storage, logger *zap.Logger, opts ...Option) *SessionClient {
	c := &SessionClient{
		baseURL:  baseURL,
		http:     newHTTPClient(15*time.Second, 10*time.Second),
		storage:  storage,
		logger:   logger,
		interval: RefreshInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.restore()
	return c
}

func (c *SessionClient) restore() {
	tok, ok := c.storage.Get(StorageTokenKey)
	if !ok || tok == "" {
		return
	}
	var user *models.User
	if raw, ok := c.storage.Get(StorageUserKey); ok {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			// malformed stored data is treated as no session
			return
		}
	}
	c.mu.Lock()
	c.token = tok
	c.user = user
	c.state = StateAuthenticated
	c.startLoopLocked()
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *SessionClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionClient) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateUnauthenticated && c.token != ""
}

// Token returns the currently held session token, empty when logged out.
func (c *SessionClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// CurrentUser returns the locally held user, nil when logged out.
func (c *SessionClient) CurrentUser() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// RequestVerification asks the authority to start a phone challenge.
func (c *SessionClient) RequestVerification(ctx context.Context, phoneNumber string) (string, error) {
	var resp apiResponse
	status, err := c.http.postJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/request-verification", "",
		models.RequestVerificationReq{PhoneNumber: phoneNumber}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Message)
	}
	return resp.DevCode, nil
}

// VerifyCode submits a challenge code. attemptsLeft is meaningful only when
// the returned error reports a mismatch.
func (c *SessionClient) VerifyCode(ctx context.Context, phoneNumber, code string) (int, error) {
	var resp apiResponse
	status, err := c.http.postJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/verify-code", "",
		models.VerifyCodeReq{PhoneNumber: phoneNumber, Code: code}, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK || !resp.Success {
		left := 0
		if resp.AttemptsLeft != nil {
			left = *resp.AttemptsLeft
		}
		return left, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Message)
	}
	return 0, nil
}

// ResendVerification regenerates the challenge code.
func (c *SessionClient) ResendVerification(ctx context.Context, phoneNumber string) (string, error) {
	var resp apiResponse
	status, err := c.http.postJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/resend-verification", "",
		models.RequestVerificationReq{PhoneNumber: phoneNumber}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || !resp.Success {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Message)
	}
	return resp.DevCode, nil
}

// Login authenticates and, on success, persists the session and starts the
// refresh loop.
func (c *SessionClient) Login(ctx context.Context, phoneNumber, password string) (*models.User, error) {
	return c.authenticate(ctx, c.baseURL+"/api/auth/login",
		models.LoginReq{PhoneNumber: phoneNumber, Password: password})
}

// Register creates an identity for a verified phone number and logs it in.
func (c *SessionClient) Register(ctx context.Context, phoneNumber, password, name string) (*models.User, error) {
	return c.authenticate(ctx, c.baseURL+"/api/auth/register",
		models.RegisterReq{PhoneNumber: phoneNumber, Password: password, Name: name})
}

func (c *SessionClient) authenticate(ctx context.Context, url string, body any) (*models.User, error) {
	var resp apiResponse
	status, err := c.http.postJSON(ctx, http.MethodPost, url, "", body, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Token == "" || status >= 400 {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Message)
	}
	c.adopt(resp.Token, resp.User, true)
	return resp.User, nil
}

// AdoptSession takes over a session written by a sibling context without a
// network round trip.
func (c *SessionClient) AdoptSession(token string, user *models.User) {
	c.adopt(token, user, false)
}

func (c *SessionClient) adopt(token string, user *models.User, persist bool) {
	c.mu.Lock()
	c.generation++
	c.token = token
	c.user = user
	c.state = StateAuthenticated
	c.startLoopLocked()
	c.mu.Unlock()
	if persist {
		c.persist(token, user)
	}
}

// persist writes the user before the token: the token key is the cross-tab
// signal, so by the time a sibling reacts to it the user is already there.
func (c *SessionClient) persist(token string, user *models.User) {
	if user != nil {
		if b, err := json.Marshal(user); err == nil {
			c.storage.Set(StorageUserKey, string(b))
		}
	}
	c.storage.Set(StorageTokenKey, token)
}

// Logout notifies the authority best-effort, then unconditionally clears
// local and shared state. It is safe to call repeatedly.
func (c *SessionClient) Logout(ctx context.Context) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if tok != "" {
		if _, err := c.http.postJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/logout", tok, nil, nil); err != nil {
			c.logger.Warn("logout notification failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	c.storage.Remove(StorageTokenKey)
	c.storage.Remove(StorageUserKey)

	if c.callbacks.OnUserLoggedOut != nil {
		c.callbacks.OnUserLoggedOut()
	}
}

// HandleExternalLogout reacts to a sibling context removing the session:
// clear local state without touching storage. No-op when already logged out,
// so a tab never reacts twice to its own logout.
func (c *SessionClient) HandleExternalLogout() {
	c.mu.Lock()
	if c.state == StateUnauthenticated {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	c.mu.Unlock()
	if c.callbacks.OnUserLoggedOut != nil {
		c.callbacks.OnUserLoggedOut()
	}
}

// clearLocked resets session state and stops the refresh loop. Pending
// responses from the old session are fenced off by the generation bump.
func (c *SessionClient) clearLocked() {
	c.generation++
	c.token = ""
	c.user = nil
	c.state = StateUnauthenticated
	c.stopLoopLocked()
}

func (c *SessionClient) startLoopLocked() {
	c.stopLoopLocked()
	stop := make(chan struct{})
	c.stopLoop = stop
	gen := c.generation
	go c.refreshLoop(stop, gen)
}

func (c *SessionClient) stopLoopLocked() {
	if c.stopLoop != nil {
		close(c.stopLoop)
		c.stopLoop = nil
	}
}

// refreshLoop ticks every interval. The tick body runs synchronously so a
// tick still in flight can never be joined by a second one.
func (c *SessionClient) refreshLoop(stop chan struct{}, gen int) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.generation == gen && c.state == StateAuthenticated
			c.mu.Unlock()
			if !current {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSessionExpired) {
				c.logger.Warn("silent refresh failed, will retry", zap.Error(err))
			}
			cancel()
		}
	}
}

// Refresh renews the token once. Transport failures return ErrTransport and
// leave the session intact; an authority rejection expires the session and
// returns ErrSessionExpired.
func (c *SessionClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateUnauthenticated || c.token == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen := c.generation
	tok := c.token
	c.state = StateRefreshing
	c.mu.Unlock()

	var resp apiResponse
	status, err := c.http.postJSON(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", tok, nil, &resp)

	c.mu.Lock()
	if c.generation != gen {
		// session changed while the call was in flight; drop the result
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		// network blip: keep the session, retry next tick
		c.state = StateAuthenticated
		c.mu.Unlock()
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.clearLocked()
		c.mu.Unlock()
		c.storage.Remove(StorageTokenKey)
		c.storage.Remove(StorageUserKey)
		if c.callbacks.OnSessionExpired != nil {
			c.callbacks.OnSessionExpired()
		}
		return ErrSessionExpired
	}
	if !resp.Success || resp.Token == "" {
		c.state = StateAuthenticated
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTransport, resp.Message)
	}
	c.token = resp.Token
	c.user = resp.User
	c.state = StateAuthenticated
	token, user := c.token, c.user
	c.mu.Unlock()

	c.persist(token, user)
	return nil
}

// Validate checks the held token against the authority, refreshing it in the
// process. Used when a backgrounded page becomes visible again.
func (c *SessionClient) Validate(ctx context.Context) bool {
	if !c.IsAuthenticated() {
		return false
	}
	return c.Refresh(ctx) == nil
}

// AuthenticatedRequest performs an arbitrary API call with the session
// token. On an authorization failure it refreshes once and retries; a second
// failure expires the session and surfaces ErrSessionExpired.
func (c *SessionClient) AuthenticatedRequest(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == "" {
		return ErrNotAuthenticated
	}

	status, err := c.http.postJSON(ctx, method, c.baseURL+path, tok, body, out)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return nil
	}

	if err := c.Refresh(ctx); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return ErrSessionExpired
		}
		return err
	}

	c.mu.Lock()
	tok = c.token
	c.mu.Unlock()
	status, err = c.http.postJSON(ctx, method, c.baseURL+path, tok, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.expire()
		return ErrSessionExpired
	}
	return nil
}

// expire force-clears the session after a terminal auth failure.
func (c *SessionClient) expire() {
	c.mu.Lock()
	if c.state == StateUnauthenticated {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	c.mu.Unlock()
	c.storage.Remove(StorageTokenKey)
	c.storage.Remove(StorageUserKey)
	if c.callbacks.OnSessionExpired != nil {
		c.callbacks.OnSessionExpired()
	}
}
