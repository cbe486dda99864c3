package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/ws"
)

// PresenceChannel is the persistent duplex connection one context keeps with
// the authority. It authenticates itself with the current session token on
// every connect and reports active/inactive transitions fire-and-forget.
// Losing this connection never invalidates the session; losing the session
// must close this connection.
type PresenceChannel struct {
	url     string
	session *SessionClient
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	wmu    sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewPresenceChannel(url string, session *SessionClient, logger *zap.Logger) *PresenceChannel {
	return &PresenceChannel{
		url:     url,
		session: session,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Connect dials the presence endpoint and immediately authenticates with the
// current token, if any. Reconnecting always re-authenticates; there is no
// session resumption at the transport level.
func (p *PresenceChannel) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return nil
	}
	p.closed = false
	p.mu.Unlock()

	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return err
	}

	if !p.install(conn) {
		// Close ran while the dial was in flight; the session behind this
		// connection is gone, so drop it instead of resurrecting it
		_ = conn.Close()
		return nil
	}

	if tok := p.session.Token(); tok != "" {
		p.send(ws.Envelope{Type: ws.EventAuthenticate, Payload: map[string]any{"token": tok}})
	}

	go p.readLoop(conn)
	return nil
}

// install adopts a freshly dialed connection unless Close ran first.
func (p *PresenceChannel) install(conn *websocket.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.conn != nil {
		return false
	}
	p.conn = conn
	return true
}

func (p *PresenceChannel) readLoop(conn *websocket.Conn) {
	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			p.mu.Lock()
			if p.conn == conn {
				p.conn = nil
			}
			closed := p.closed
			p.mu.Unlock()
			if !closed {
				p.logger.Debug("presence connection lost", zap.Error(err))
			}
			return
		}
		if env.Type == ws.EventAuthError {
			// fatal: the authority rejected our token
			msg, _ := env.Payload["message"].(string)
			p.logger.Warn("presence authentication rejected", zap.String("message", msg))
			p.Close()
			p.session.Logout(context.Background())
			return
		}
	}
}

// Active reports the user as foreground-active. Fire-and-forget.
func (p *PresenceChannel) Active() {
	p.send(ws.Envelope{Type: ws.EventUserActive})
}

// Inactive reports the user as backgrounded or about to unload.
// Fire-and-forget: no acknowledgement is expected.
func (p *PresenceChannel) Inactive() {
	p.send(ws.Envelope{Type: ws.EventUserInactive})
}

func (p *PresenceChannel) send(env ws.Envelope) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	p.wmu.Lock()
	err := conn.WriteJSON(env)
	p.wmu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		p.logger.Debug("presence send failed", zap.String("type", env.Type), zap.Error(err))
	}
}

// Close tears down the connection. Safe to call repeatedly.
func (p *PresenceChannel) Close() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.closed = true
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether a transport connection is currently up.
func (p *PresenceChannel) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}
