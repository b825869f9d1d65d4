package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope is a realtime event frame
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinChatPayload struct {
	FirstName    string `json:"firstName"`
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
}

type sendMessagePayload struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
	Text         string `json:"text"`
}

type messageReceivedPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(ev envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// hub tracks realtime connections. A user may hold several (one per open conversation).
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[string]map[*client]struct{})}
}

func (h *hub) register(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	log.Debug().Str("user_id", userID).Msg("WebSocket connection registered")
}

func (h *hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	c.conn.Close()
	log.Debug().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// sendToUser delivers ev to every connection of userID
func (h *hub) sendToUser(userID string, ev envelope) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(ev); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to send event")
			continue
		}
		sent++
	}
	return sent
}

func (h *hub) isOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// handleWebSocket handles GET /ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := s.tokens.validate(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	c := &client{conn: conn}
	s.hub.register(userID, c)
	defer s.hub.unregister(userID, c)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var ev envelope
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			continue
		}
		s.handleEvent(userID, ev)
	}
}

func (s *Server) handleEvent(userID string, ev envelope) {
	switch ev.Event {
	case "joinChat":
		var p joinChatPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Invalid joinChat payload")
			return
		}
		log.Info().
			Str("user_id", userID).
			Str("target_user_id", p.TargetUserID).
			Msg("User joined chat")
	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Invalid sendMessage payload")
			return
		}
		if strings.TrimSpace(p.Text) == "" || p.TargetUserID == "" {
			return
		}
		s.state.appendMessage(userID, p.TargetUserID, p.Text)

		data, err := json.Marshal(messageReceivedPayload{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Text:      p.Text,
			UserID:    userID,
		})
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to encode messageReceived")
			return
		}
		s.hub.sendToUser(p.TargetUserID, envelope{Event: "messageReceived", Data: data})
	default:
		log.Warn().Str("user_id", userID).Str("event", ev.Event).Msg("Unknown event")
	}
}
