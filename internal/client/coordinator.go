package client

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/models"
)

// PresenceLink is the slice of PresenceChannel the coordinator drives.
type PresenceLink interface {
	Active()
	Inactive()
	Close()
}

// CrossTabCoordinator keeps sibling contexts of the same origin converged on
// one logical session. It only reacts to storage changes and local
// visibility signals; it never calls the network itself.
type CrossTabCoordinator struct {
	session  *SessionClient
	presence PresenceLink
	storage  Storage
	logger   *zap.Logger
	unsub    func()
}

func NewCrossTabCoordinator(session *SessionClient, presence PresenceLink, storage Storage, logger *zap.Logger) *CrossTabCoordinator {
	return &CrossTabCoordinator{
		session:  session,
		presence: presence,
		storage:  storage,
		logger:   logger,
	}
}

// Start subscribes to storage changes on the session-token key.
func (c *CrossTabCoordinator) Start() {
	if c.unsub != nil {
		return
	}
	c.unsub = c.storage.Subscribe(c.handleStorageChange)
}

// Stop unsubscribes; it does not touch session state.
func (c *CrossTabCoordinator) Stop() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

func (c *CrossTabCoordinator) handleStorageChange(ch Change) {
	if ch.Key != StorageTokenKey {
		return
	}
	if ch.Removed {
		// another tab logged out; follow it even though this tab never asked
		c.session.HandleExternalLogout()
		c.presence.Close()
		return
	}
	if ch.Value == c.session.Token() {
		return
	}
	// a sibling wrote a different token: adopt it without re-validating
	var user *models.User
	if raw, ok := c.storage.Get(StorageUserKey); ok {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			c.logger.Warn("malformed stored user, treating as no session", zap.Error(err))
			c.session.HandleExternalLogout()
			c.presence.Close()
			return
		}
	}
	c.session.AdoptSession(ch.Value, user)
}

// HandleVisibility reacts to the page gaining or losing foreground
// visibility. Returning to the foreground forces a validate-and-refresh so
// tokens that expired while backgrounded are caught immediately.
func (c *CrossTabCoordinator) HandleVisibility(visible bool) {
	if !c.session.IsAuthenticated() {
		return
	}
	if visible {
		c.presence.Active()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !c.session.Validate(ctx) {
			c.logger.Info("session validation on foreground failed")
		}
		return
	}
	c.presence.Inactive()
}

// HandleBeforeUnload fires a best-effort inactive signal as the page goes
// away.
func (c *CrossTabCoordinator) HandleBeforeUnload() {
	if c.session.IsAuthenticated() {
		c.presence.Inactive()
	}
}
