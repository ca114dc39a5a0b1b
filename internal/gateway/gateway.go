// Package gateway terminates WebSocket connections, resolves identities,
// validates sender roles, and bridges client envelopes into match actors.
package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moodclash/deck"
	"moodclash/internal/auth"
	"moodclash/internal/codec"
	"moodclash/internal/lobby"
	"moodclash/internal/match"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins once the client host is fixed
	},
}

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	readLimit    = 1 << 16
)

// Connection is one WebSocket client.
type Connection struct {
	ID       string
	Identity auth.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Gateway  *Gateway

	mu    sync.Mutex
	match *match.Match
}

// Gateway manages the connection registry.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	userConns   map[uint64]*Connection
	nextConnID  uint64

	lobby *lobby.Lobby
	auth  auth.Service

	log zerolog.Logger
}

func New(lby *lobby.Lobby, authService auth.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		userConns:   make(map[uint64]*Connection),
		lobby:       lby,
		auth:        authService,
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

// HandleWebSocket upgrades the connection after resolving the session
// token from the Authorization header or a token query parameter.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	identity, ok := g.auth.ResolveSession(token)
	if !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error().Err(err).Msg("upgrade failed")
		return
	}

	g.mu.Lock()
	g.nextConnID++
	c := &Connection{
		ID:       fmt.Sprintf("conn_%d", g.nextConnID),
		Identity: identity,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Gateway:  g,
	}
	// A reconnect replaces the previous connection for this user. Send stays
	// open (the match actor may be mid-broadcast into it); closing the socket
	// makes the old pumps exit on their own.
	if prev := g.userConns[identity.UserID]; prev != nil {
		prev.Conn.Close()
		delete(g.connections, prev.ID)
	}
	g.connections[c.ID] = c
	g.userConns[identity.UserID] = c
	total := len(g.connections)
	g.mu.Unlock()

	g.log.Info().Str("conn", c.ID).Uint64("user", identity.UserID).Int("total", total).Msg("client connected")

	// Resuming into a running match restores the seat before the TTL reaps it.
	if m := g.lobby.MatchOf(identity.UserID); m != nil {
		c.setMatch(m)
		_ = m.SubmitEvent(match.Event{Type: match.EventConnResume, UserID: identity.UserID})
	}

	go c.readPump()
	go c.writePump()
}

func (c *Connection) currentMatch() *match.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

func (c *Connection) setMatch(m *match.Match) {
	c.mu.Lock()
	c.match = m
	c.mu.Unlock()
}

func (c *Connection) readPump() {
	defer func() {
		wasCurrent := c.Gateway.removeConnection(c)
		c.Conn.Close()
		// A superseded connection dying must not mark the user offline: the
		// replacement already resumed.
		if !wasCurrent {
			return
		}
		if m := c.currentMatch(); m != nil {
			_ = m.SubmitEvent(match.Event{Type: match.EventConnLost, UserID: c.Identity.UserID})
		}
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Gateway.log.Warn().Err(err).Str("conn", c.ID).Msg("read error")
			}
			break
		}
		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	env, err := codec.DecodeClient(data)
	if err != nil {
		c.sendError(1, "invalid message format")
		return
	}

	if env.Kind != codec.ClientJoin {
		m := c.currentMatch()
		if m == nil {
			c.sendError(3, "not in a match")
			return
		}
		if err := codec.ValidateSender(env.Kind, m.RoleOf(c.Identity.UserID)); err != nil {
			c.sendError(6, "observers cannot do that")
			return
		}
	}

	switch env.Kind {
	case codec.ClientJoin:
		c.handleJoin(env)
	case codec.ClientPlay:
		c.handlePlay(env)
	case codec.ClientForceEnd:
		c.submitSimple(match.EventForceEnd)
	case codec.ClientReset:
		c.submitSimple(match.EventReset)
	}
}

func (c *Connection) handleJoin(env codec.ClientEnvelope) {
	deckID := deck.ID(env.Join.DeckID)
	if !deckID.Valid() {
		c.sendError(2, fmt.Sprintf("unknown deck %d", env.Join.DeckID))
		return
	}

	var m *match.Match
	if env.MatchID != "" {
		m = c.Gateway.lobby.Get(env.MatchID)
		if m == nil {
			c.sendError(2, "no such match")
			return
		}
	} else {
		var err error
		m, err = c.Gateway.lobby.QuickStart(c.Identity.UserID, c.Gateway.sendToUser)
		if err != nil {
			c.sendError(2, err.Error())
			return
		}
	}
	c.setMatch(m)

	err := m.SubmitEvent(match.Event{
		Type:   match.EventJoin,
		UserID: c.Identity.UserID,
		Name:   c.Identity.Username,
		DeckID: deckID,
	})
	if err != nil {
		c.sendError(2, err.Error())
		return
	}
	c.Gateway.log.Info().Uint64("user", c.Identity.UserID).Str("match", m.ID).Msg("joined match")
}

func (c *Connection) handlePlay(env codec.ClientEnvelope) {
	m := c.currentMatch()
	err := m.SubmitEvent(match.Event{
		Type:     match.EventPlay,
		UserID:   c.Identity.UserID,
		ActionID: env.Play.ActionID,
	})
	if err != nil {
		if reject, ok := err.(*match.RejectError); ok {
			c.sendReject(reject.Reason.String())
			return
		}
		c.sendError(5, err.Error())
	}
}

func (c *Connection) submitSimple(eventType match.EventType) {
	m := c.currentMatch()
	if err := m.SubmitEvent(match.Event{Type: eventType, UserID: c.Identity.UserID}); err != nil {
		c.sendError(5, err.Error())
	}
}

func (c *Connection) sendReject(reason string) {
	matchID := ""
	if m := c.currentMatch(); m != nil {
		matchID = m.ID
	}
	env, err := codec.Wrap(matchID, 0, &codec.ActionRejected{Reason: reason})
	if err != nil {
		return
	}
	c.enqueue(env)
}

func (c *Connection) sendError(code int, msg string) {
	matchID := ""
	if m := c.currentMatch(); m != nil {
		matchID = m.ID
	}
	env, err := codec.Wrap(matchID, 0, &codec.ErrorResponse{Code: code, Message: msg})
	if err != nil {
		return
	}
	c.enqueue(env)
}

func (c *Connection) enqueue(env *codec.ServerEnvelope) {
	data, err := codec.Encode(env)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeConnection drops c from the registry and reports whether it was
// still the user's current connection (false when a reconnect superseded it).
func (g *Gateway) removeConnection(c *Connection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connections, c.ID)
	wasCurrent := g.userConns[c.Identity.UserID] == c
	if wasCurrent {
		delete(g.userConns, c.Identity.UserID)
	}
	g.log.Info().Str("conn", c.ID).Int("total", len(g.connections)).Msg("client disconnected")
	return wasCurrent
}

// sendToUser is the broadcast sink handed to matches.
func (g *Gateway) sendToUser(userID uint64, data []byte) {
	g.mu.RLock()
	c := g.userConns[userID]
	g.mu.RUnlock()

	if c != nil {
		select {
		case c.Send <- data:
		default:
			// Drop if the client cannot keep up; the next snapshot resyncs it.
		}
	}
}
