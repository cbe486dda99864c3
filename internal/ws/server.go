package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/events"
	"github.com/fathima-sithara/session-service/internal/models"
)

// Envelope is the JSON frame exchanged on the presence channel.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Client → server event types, plus the server-side error event. Connections
// must authenticate before anything else counts; reconnects always
// re-authenticate.
const (
	EventAuthenticate  = "authenticate"
	EventUserActive    = "user_active"
	EventUserInactive  = "user_inactive"
	EventAuthenticated = "authenticated"
	EventAuthError     = "authentication_error"
	EventPresence      = "presence"
)

// SessionAuthority is the slice of the auth service the presence channel
// needs.
type SessionAuthority interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
	SetOnline(ctx context.Context, userID string) (*models.User, error)
	SetOffline(ctx context.Context, userID string) error
}

// Publisher mirrors events.Producer; nil means no event stream.
type Publisher interface {
	PublishPresence(ctx context.Context, ev events.PresenceEvent) error
}

// Server accepts presence connections, authenticates them with session
// tokens and derives online/offline state from the connection lifecycle.
type Server struct {
	hub       *Hub
	authority SessionAuthority
	publisher Publisher
	logger    *zap.Logger
}

func NewServer(authority SessionAuthority, publisher Publisher, logger *zap.Logger) *Server {
	return &Server{
		hub:       NewHub(),
		authority: authority,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// session is the per-connection state: which identity, if any, this
// connection has proven.
type session struct {
	userID string
	send   func(Envelope)
}

func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := newClient(conn)
		sess := &session{send: client.enqueue}
		go client.writePump()

		defer func() {
			s.disconnect(sess, client)
			client.close()
		}()

		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			s.route(context.Background(), sess, client, env)
		}
	}
}

// route dispatches one inbound envelope against the connection's session.
func (s *Server) route(ctx context.Context, sess *session, client *Client, env Envelope) {
	switch env.Type {
	case EventAuthenticate:
		s.authenticate(ctx, sess, client, env)
	case EventUserActive:
		if sess.userID == "" {
			return
		}
		user, err := s.authority.SetOnline(ctx, sess.userID)
		if err != nil {
			s.logger.Warn("presence update failed", zap.String("user_id", sess.userID), zap.Error(err))
			return
		}
		s.announce(ctx, user)
	case EventUserInactive:
		if sess.userID == "" {
			return
		}
		if err := s.authority.SetOffline(ctx, sess.userID); err != nil {
			s.logger.Warn("presence update failed", zap.String("user_id", sess.userID), zap.Error(err))
			return
		}
		s.publish(ctx, events.PresenceEvent{UserID: sess.userID, IsOnline: false, LastSeen: time.Now().Unix()})
	}
}

func (s *Server) authenticate(ctx context.Context, sess *session, client *Client, env Envelope) {
	tok, _ := env.Payload["token"].(string)
	if tok == "" {
		sess.send(Envelope{Type: EventAuthError, Payload: map[string]any{"message": "missing token"}})
		return
	}
	user, err := s.authority.ValidateToken(ctx, tok)
	if err != nil {
		sess.send(Envelope{Type: EventAuthError, Payload: map[string]any{"message": "invalid or expired token"}})
		return
	}
	sess.userID = user.ID
	s.hub.AddClient(user.ID, client)
	s.hub.JoinRoom(user.ID, user.ID)

	updated, err := s.authority.SetOnline(ctx, user.ID)
	if err != nil {
		s.logger.Warn("presence update failed", zap.String("user_id", user.ID), zap.Error(err))
		updated = user
	}
	sess.send(Envelope{Type: EventAuthenticated, Payload: map[string]any{"userId": user.ID}})
	s.announce(ctx, updated)
}

// disconnect handles transport-level closure. Connections that never
// authenticated do not affect presence.
func (s *Server) disconnect(sess *session, client *Client) {
	if sess.userID == "" {
		return
	}
	s.hub.RemoveClient(sess.userID, client)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.authority.SetOffline(ctx, sess.userID); err != nil {
		s.logger.Warn("presence update failed", zap.String("user_id", sess.userID), zap.Error(err))
		return
	}
	s.publish(ctx, events.PresenceEvent{UserID: sess.userID, IsOnline: false, LastSeen: time.Now().Unix()})
}

func (s *Server) announce(ctx context.Context, user *models.User) {
	env := Envelope{Type: EventPresence, Payload: map[string]any{
		"userId":   user.ID,
		"isOnline": user.IsOnline,
	}}
	if user.LastSeen != nil {
		env.Payload["lastSeen"] = user.LastSeen.Unix()
	}
	s.hub.Broadcast(user.ID, env)
	ev := events.PresenceEvent{UserID: user.ID, IsOnline: user.IsOnline}
	if user.LastSeen != nil {
		ev.LastSeen = user.LastSeen.Unix()
	}
	s.publish(ctx, ev)
}

func (s *Server) publish(ctx context.Context, ev events.PresenceEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPresence(ctx, ev); err != nil {
		s.logger.Warn("presence event publish failed", zap.String("user_id", ev.UserID), zap.Error(err))
	}
}
