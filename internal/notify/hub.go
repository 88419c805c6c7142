// Package notify delivers game events to players over websockets.
//
// A player connects once (GET /ws) and optionally subscribes to one channel.
// Direct messages go to the player's connection; channel events go to every
// connection subscribed to that channel. The hub also owns the mapping from
// session id to the channel-visible artifact (the last board posted for it).
package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected     = errors.New("player is not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
)

// Event types sent to clients.
const (
	TypeDirect   = "dm"
	TypeBoard    = "board"
	TypeExpired  = "expired"
	TypeFinished = "finished"
)

// Event is the JSON frame written to clients.
type Event struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId,omitempty"`
	ArtifactID string `json:"artifactId,omitempty"`
	ChannelID  string `json:"channelId,omitempty"`
	Text       string `json:"text,omitempty"`
	Board      string `json:"board,omitempty"`
}

type artifact struct {
	id        string
	channelID string
}

// Hub tracks live connections and channel artifacts.
type Hub struct {
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	players   map[string]*conn              // playerID -> conn
	channels  map[string]map[*conn]struct{} // channelID -> subscribers
	artifacts map[string]artifact           // sessionID -> artifact
}

// NewHub returns a Hub accepting websocket upgrades from allowedOrigin
// (any origin when empty).
func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		players:   make(map[string]*conn),
		channels:  make(map[string]map[*conn]struct{}),
		artifacts: make(map[string]artifact),
	}
}

// ServeWS upgrades the request and blocks until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, playerID, channelID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("websocket upgrade")
		return
	}
	c := newConn(ws, playerID, channelID)
	h.register(c)
	log.Info().Str("player", playerID).Str("channel", channelID).Msg("websocket connected")

	c.readLoop()

	h.unregister(c)
	c.close()
	log.Info().Str("player", playerID).Msg("websocket disconnected")
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.players[c.playerID]; ok {
		h.dropLocked(old)
		go old.close()
	}
	h.players[c.playerID] = c
	if c.channelID != "" {
		subs := h.channels[c.channelID]
		if subs == nil {
			subs = make(map[*conn]struct{})
			h.channels[c.channelID] = subs
		}
		subs[c] = struct{}{}
	}
}

// unregister only removes c if it is still the registered connection.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.players[c.playerID] == c {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *conn) {
	delete(h.players, c.playerID)
	if subs, ok := h.channels[c.channelID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, c.channelID)
		}
	}
}

// Connected reports whether the player has a live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.players[playerID]
	return ok
}

// SendDirectMessage writes a DM to the player's connection.
func (h *Hub) SendDirectMessage(ctx context.Context, playerID, text string) error {
	h.mu.RLock()
	c, ok := h.players[playerID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return c.writeJSON(ctx, Event{Type: TypeDirect, Text: text})
}

// Broadcast sends ev to every subscriber of channelID and returns how many
// connections accepted it.
func (h *Hub) Broadcast(ctx context.Context, channelID string, ev Event) int {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.channels[channelID]))
	for c := range h.channels[channelID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	ev.ChannelID = channelID
	sent := 0
	for _, c := range targets {
		if err := c.writeJSON(ctx, ev); err != nil {
			log.Debug().Err(err).Str("player", c.playerID).Str("channel", channelID).Msg("broadcast skipped")
			continue
		}
		sent++
	}
	return sent
}

// PublishBoard posts a session's board to its channel. The first post creates
// the session's artifact; later posts update it.
func (h *Hub) PublishBoard(ctx context.Context, sessionID, channelID string, board []byte) string {
	h.mu.Lock()
	a, ok := h.artifacts[sessionID]
	if !ok {
		a = artifact{id: uuid.NewString(), channelID: channelID}
		h.artifacts[sessionID] = a
	}
	h.mu.Unlock()

	h.Broadcast(ctx, channelID, Event{Type: TypeBoard, SessionID: sessionID, ArtifactID: a.id, Board: string(board)})
	return a.id
}

// Finish announces the end of a session and drops its artifact.
func (h *Hub) Finish(ctx context.Context, sessionID, text string) {
	h.mu.Lock()
	a, ok := h.artifacts[sessionID]
	delete(h.artifacts, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.Broadcast(ctx, a.channelID, Event{Type: TypeFinished, SessionID: sessionID, ArtifactID: a.id, Text: text})
}

// MarkExpired tells the channel that the session's artifact is stale.
// Sessions that never published an artifact are ignored.
func (h *Hub) MarkExpired(ctx context.Context, sessionID, channelID string) error {
	h.mu.Lock()
	a, ok := h.artifacts[sessionID]
	delete(h.artifacts, sessionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	if a.channelID != "" {
		channelID = a.channelID
	}
	h.Broadcast(ctx, channelID, Event{
		Type:       TypeExpired,
		SessionID:  sessionID,
		ArtifactID: a.id,
		Text:       "This game expired after inactivity.",
	})
	return nil
}

// ArtifactID returns the artifact posted for a session, if any.
func (h *Hub) ArtifactID(sessionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.artifacts[sessionID]
	return a.id, ok
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.players))
	for _, c := range h.players {
		conns = append(conns, c)
	}
	h.players = make(map[string]*conn)
	h.channels = make(map[string]map[*conn]struct{})
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
