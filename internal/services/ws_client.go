package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// WSMessage is a realtime event frame
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatConn is one realtime connection
type ChatConn interface {
	// Emit sends an event with a JSON-encodable payload
	Emit(event string, payload interface{}) error
	// Next blocks until the next server event arrives or the connection fails
	Next() (WSMessage, error)
	Close() error
}

// ChatDialer opens realtime connections
type ChatDialer interface {
	Dial(ctx context.Context, token string) (ChatConn, error)
}

// WSDialer dials the backend's WebSocket endpoint
type WSDialer struct {
	socketURL string
	dialer    *websocket.Dialer
}

// NewWSDialer creates a dialer for the realtime endpoint under socketURL
func NewWSDialer(socketURL string) *WSDialer {
	return &WSDialer{
		socketURL: strings.TrimRight(socketURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects with token passed both as query parameter and bearer header
func (d *WSDialer) Dial(ctx context.Context, token string) (ChatConn, error) {
	u, err := url.Parse(d.socketURL + "/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial realtime channel (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial realtime channel: %w", err)
	}

	c := &wsConn{conn: conn, done: make(chan struct{})}
	go c.keepAliveLoop()
	return c, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (c *wsConn) Next() (WSMessage, error) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return WSMessage{}, err
		}
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed realtime frame")
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) keepAliveLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("Realtime ping failed")
				return
			}
		}
	}
}
