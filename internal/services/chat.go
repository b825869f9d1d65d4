package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ChatStatus is the lifecycle state of a chat session
type ChatStatus string

const (
	ChatClosed       ChatStatus = "closed"
	ChatOpening      ChatStatus = "opening"
	ChatJoined       ChatStatus = "joined"
	ChatDisconnected ChatStatus = "disconnected"
)

// ErrChatNotConnected is returned by Send when no conversation is joined
var ErrChatNotConnected = errors.New("chat is not connected")

// ChatUpdate is delivered to subscribers after every status or message change
type ChatUpdate struct {
	Status   ChatStatus
	Messages []models.ChatMessage
}

type tokenSource interface {
	Token(ctx context.Context) (string, error)
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
	LegacyLN  string `json:"LastName"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
}

type historyResponse struct {
	Messages []struct {
		SenderID struct {
			ID        string `json:"_id"`
			FirstName string `json:"firstName"`
			LastName  string `json:"LastName"`
		} `json:"senderId"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"messages"`
	Participants []models.User `json:"participants"`
}

// ChatSession holds at most one realtime connection, scoped to the conversation being viewed
type ChatSession struct {
	api    Requester
	tokens tokenSource
	dialer ChatDialer
	events *notify.Dispatcher

	mu            sync.Mutex
	status        ChatStatus
	self          models.User
	counterpartID string
	conn          ChatConn
	// epoch invalidates callbacks from connections that have since been closed
	epoch    uint64
	messages []models.ChatMessage
	pending  []queuedMessage
	hydrated bool

	subMu  sync.Mutex
	subs   map[int]func(ChatUpdate)
	nextID int
}

// queuedMessage is a message applied before history arrived. Local sends stay visible while queued.
type queuedMessage struct {
	models.ChatMessage
	local bool
}

// NewChatSession creates a closed chat session
func NewChatSession(api Requester, tokens tokenSource, dialer ChatDialer, events *notify.Dispatcher) *ChatSession {
	return &ChatSession{
		api:    api,
		tokens: tokens,
		dialer: dialer,
		events: events,
		status: ChatClosed,
		subs:   make(map[int]func(ChatUpdate)),
	}
}

// Subscribe registers fn for updates and returns a function that removes it
func (c *ChatSession) Subscribe(fn func(ChatUpdate)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Status returns the current lifecycle state
func (c *ChatSession) Status() ChatStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CounterpartID returns the user on the other side of the open conversation
func (c *ChatSession) CounterpartID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counterpartID
}

// Messages returns the conversation in local-apply order
func (c *ChatSession) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLocked()
}

// visibleLocked returns what the conversation shows now. Before history loads that is
// only the user's own sends.
func (c *ChatSession) visibleLocked() []models.ChatMessage {
	if c.hydrated {
		return append([]models.ChatMessage(nil), c.messages...)
	}
	var out []models.ChatMessage
	for _, q := range c.pending {
		if q.local {
			out = append(out, q.ChatMessage)
		}
	}
	return out
}

// Open enters the conversation with counterpartID. History is fetched while the
// realtime channel is established; events arriving before history are queued
// and appended after it.
func (c *ChatSession) Open(ctx context.Context, self models.User, counterpartID string) error {
	c.mu.Lock()
	if c.counterpartID == counterpartID && (c.status == ChatOpening || c.status == ChatJoined) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Close()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.status = ChatOpening
	c.self = self
	c.counterpartID = counterpartID
	c.messages = nil
	c.pending = nil
	c.hydrated = false
	c.mu.Unlock()
	c.publish()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history, err := c.fetchHistory(gctx, counterpartID)
		if err != nil {
			log.Warn().Err(err).Str("counterpart_id", counterpartID).Msg("Failed to load chat history")
			publishFailure(ctx, c.events, err)
		}
		c.hydrate(epoch, history)
		return nil
	})
	g.Go(func() error {
		return c.connect(gctx, epoch, self, counterpartID)
	})

	if err := g.Wait(); err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.status = ChatDisconnected
		}
		c.mu.Unlock()
		c.publish()
		c.events.Publish(ctx, notify.Event{Kind: notify.KindChatStatus, UserID: counterpartID, Message: string(ChatDisconnected), Err: err})
		return err
	}

	log.Info().Str("counterpart_id", counterpartID).Msg("Chat joined")
	return nil
}

func (c *ChatSession) fetchHistory(ctx context.Context, counterpartID string) ([]models.ChatMessage, error) {
	var resp historyResponse
	if err := c.api.Do(ctx, http.MethodGet, "/chat/"+counterpartID, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	out := make([]models.ChatMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, models.ChatMessage{
			SenderID:        m.SenderID.ID,
			SenderFirstName: m.SenderID.FirstName,
			SenderLastName:  m.SenderID.LastName,
			Text:            m.Text,
			Timestamp:       m.CreatedAt,
		})
	}
	return out, nil
}

// hydrate seeds the conversation with history followed by anything queued meanwhile
func (c *ChatSession) hydrate(epoch uint64, history []models.ChatMessage) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	msgs := make([]models.ChatMessage, 0, len(history)+len(c.pending))
	msgs = append(msgs, history...)
	for _, q := range c.pending {
		msgs = append(msgs, q.ChatMessage)
	}
	c.messages = msgs
	c.pending = nil
	c.hydrated = true
	c.mu.Unlock()
	c.publish()
}

func (c *ChatSession) connect(ctx context.Context, epoch uint64, self models.User, counterpartID string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	conn, err := c.dialer.Dial(ctx, token)
	if err != nil {
		return apperr.Network(err)
	}

	join := joinChatPayload{FirstName: self.FirstName, UserID: self.ID, TargetUserID: counterpartID}
	if err := conn.Emit("joinChat", join); err != nil {
		conn.Close()
		return apperr.Network(err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		conn.Close()
		return ErrChatNotConnected
	}
	c.conn = conn
	c.status = ChatJoined
	c.mu.Unlock()

	go c.readLoop(epoch, conn)
	c.publish()
	return nil
}

func (c *ChatSession) readLoop(epoch uint64, conn ChatConn) {
	for {
		msg, err := conn.Next()
		if err != nil {
			c.mu.Lock()
			lost := c.epoch == epoch && c.status == ChatJoined
			if lost {
				c.status = ChatDisconnected
				c.conn = nil
			}
			counterpartID := c.counterpartID
			c.mu.Unlock()

			if lost {
				log.Warn().Err(err).Str("counterpart_id", counterpartID).Msg("Chat connection lost")
				conn.Close()
				c.publish()
				c.events.Publish(context.Background(), notify.Event{
					Kind:    notify.KindChatStatus,
					UserID:  counterpartID,
					Message: string(ChatDisconnected),
					Err:     err,
				})
			}
			return
		}

		if msg.Event != "messageReceived" {
			continue
		}
		var p messageReceivedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed messageReceived")
			continue
		}
		lastName := p.LastName
		if lastName == "" {
			lastName = p.LegacyLN
		}
		c.deliver(epoch, models.ChatMessage{
			SenderID:        p.UserID,
			SenderFirstName: p.FirstName,
			SenderLastName:  lastName,
			Text:            p.Text,
			Timestamp:       time.Now(),
		})
	}
}

// deliver appends an incoming message in arrival order
func (c *ChatSession) deliver(epoch uint64, m models.ChatMessage) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.appendLocked(m, false)
	selfID := c.self.ID
	c.mu.Unlock()

	c.publish()
	if m.SenderID != selfID {
		c.events.Publish(context.Background(), notify.Event{
			Kind:     notify.KindMessage,
			UserID:   m.SenderID,
			UserName: strings.TrimSpace(m.SenderFirstName + " " + m.SenderLastName),
			Message:  m.Text,
		})
	}
}

func (c *ChatSession) appendLocked(m models.ChatMessage, local bool) {
	if c.hydrated {
		c.messages = append(c.messages, m)
	} else {
		c.pending = append(c.pending, queuedMessage{ChatMessage: m, local: local})
	}
}

// Send emits text to the counterpart. The message is appended locally before the
// emit; the server does not echo it back. Blank text is ignored.
func (c *ChatSession) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.status != ChatJoined || c.conn == nil {
		c.mu.Unlock()
		return ErrChatNotConnected
	}
	conn := c.conn
	self := c.self
	counterpartID := c.counterpartID
	c.appendLocked(models.ChatMessage{
		SenderID:        self.ID,
		SenderFirstName: self.FirstName,
		SenderLastName:  self.LastName,
		Text:            text,
		Timestamp:       time.Now(),
	}, true)
	c.mu.Unlock()
	c.publish()

	err := conn.Emit("sendMessage", sendMessagePayload{
		FirstName:    self.FirstName,
		LastName:     self.LastName,
		UserID:       self.ID,
		TargetUserID: counterpartID,
		Text:         text,
	})
	if err != nil {
		log.Warn().Err(err).Str("counterpart_id", counterpartID).Msg("Failed to send chat message")
		return apperr.Network(err)
	}
	return nil
}

// Close leaves the conversation. Safe to call repeatedly.
func (c *ChatSession) Close() {
	c.mu.Lock()
	if c.status == ChatClosed {
		c.mu.Unlock()
		return
	}
	c.epoch++
	conn := c.conn
	counterpartID := c.counterpartID
	c.conn = nil
	c.status = ChatClosed
	c.counterpartID = ""
	c.messages = nil
	c.pending = nil
	c.hydrated = false
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Error closing chat connection")
		}
	}
	c.publish()

	log.Info().Str("counterpart_id", counterpartID).Msg("Chat closed")
}

func (c *ChatSession) publish() {
	c.mu.Lock()
	update := ChatUpdate{Status: c.status, Messages: c.visibleLocked()}
	c.mu.Unlock()

	c.subMu.Lock()
	subs := make([]func(ChatUpdate), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(update)
	}
}
