package devserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"techtribe-client/internal/models"

	"github.com/google/uuid"
)

type account struct {
	user     models.User
	email    string
	password string
}

type interest struct {
	id        string
	fromID    string
	toID      string
	status    models.RequestStatus
	createdAt time.Time
}

type chatMessage struct {
	senderID  string
	text      string
	createdAt time.Time
}

// state is the in-memory backing data of the development backend
type state struct {
	mu        sync.RWMutex
	accounts  map[string]*account // by user ID
	order     []string            // user IDs in signup order, drives feed order
	byEmail   map[string]string
	interests map[string]*interest // by request ID
	chats     map[string][]chatMessage
}

func newState() *state {
	return &state{
		accounts:  make(map[string]*account),
		byEmail:   make(map[string]string),
		interests: make(map[string]*interest),
		chats:     make(map[string][]chatMessage),
	}
}

func (s *state) createAccount(u models.User, email, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.User{}, fmt.Errorf("email and password are required")
	}
	if _, exists := s.byEmail[email]; exists {
		return models.User{}, fmt.Errorf("email already registered")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	s.accounts[u.ID] = &account{user: u.Clone(), email: email, password: password}
	s.byEmail[email] = u.ID
	s.order = append(s.order, u.ID)
	return u.Clone(), nil
}

func (s *state) authenticate(email, password string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, false
	}
	acc := s.accounts[id]
	if acc.password != password {
		return models.User{}, false
	}
	return acc.user.Clone(), true
}

func (s *state) user(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, false
	}
	return acc.user.Clone(), true
}

func (s *state) updateUser(id string, upd models.ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, fmt.Errorf("user not found")
	}
	u := &acc.user
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.ProfilePhotoURL != nil {
		u.ProfilePhotoURL = *upd.ProfilePhotoURL
	}
	if upd.Age != nil {
		if *upd.Age < 18 {
			return models.User{}, fmt.Errorf("age must be at least 18")
		}
		u.Age = *upd.Age
	}
	if upd.Gender != nil {
		u.Gender = *upd.Gender
	}
	if upd.About != nil {
		u.About = *upd.About
	}
	if upd.Skills != nil {
		u.Skills = append([]string(nil), upd.Skills...)
	}
	if upd.Interests != nil {
		u.Interests = append([]string(nil), upd.Interests...)
	}
	return u.Clone(), nil
}

// feed returns every user the viewer has not acted on and is not connected to
func (s *state) feed(viewerID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decided := make(map[string]bool)
	for _, in := range s.interests {
		if in.fromID == viewerID {
			decided[in.toID] = true
		}
		if in.toID == viewerID && in.status == models.RequestAccepted {
			decided[in.fromID] = true
		}
	}

	var out []models.User
	for _, id := range s.order {
		if id == viewerID || decided[id] {
			continue
		}
		out = append(out, s.accounts[id].user.Clone())
	}
	return out
}

// send records the viewer's decision on target and reports whether it produced a mutual match
func (s *state) send(fromID, toID string, status models.RequestStatus) (*interest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[toID]; !ok {
		return nil, false, fmt.Errorf("user not found")
	}
	if fromID == toID {
		return nil, false, fmt.Errorf("cannot send a request to yourself")
	}
	for _, in := range s.interests {
		if in.fromID == fromID && in.toID == toID {
			return nil, false, fmt.Errorf("request already sent")
		}
	}

	in := &interest{
		id:        uuid.New().String(),
		fromID:    fromID,
		toID:      toID,
		status:    status,
		createdAt: time.Now(),
	}
	s.interests[in.id] = in

	if status == "ignored" {
		return in, false, nil
	}
	for _, other := range s.interests {
		if other.fromID == toID && other.toID == fromID &&
			(other.status == models.RequestInterested || other.status == models.RequestSuperlike) {
			other.status = models.RequestAccepted
			in.status = models.RequestAccepted
			return in, true, nil
		}
	}
	return in, false, nil
}

func (s *state) review(viewerID, requestID string, status models.RequestStatus) (*interest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.interests[requestID]
	if !ok || in.toID != viewerID {
		return nil, fmt.Errorf("request not found")
	}
	if in.status != models.RequestInterested && in.status != models.RequestSuperlike {
		return nil, fmt.Errorf("request already reviewed")
	}
	in.status = status
	return in, nil
}

func (s *state) received(viewerID string) []models.ConnectionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*interest
	for _, in := range s.interests {
		if in.toID == viewerID && (in.status == models.RequestInterested || in.status == models.RequestSuperlike) {
			pending = append(pending, in)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].createdAt.Before(pending[j].createdAt) })

	out := make([]models.ConnectionRequest, 0, len(pending))
	for _, in := range pending {
		out = append(out, models.ConnectionRequest{
			ID:       in.id,
			FromUser: s.accounts[in.fromID].user.Clone(),
			Status:   in.status,
		})
	}
	return out
}

func (s *state) connections(viewerID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []models.User
	for _, in := range s.interests {
		if in.status != models.RequestAccepted {
			continue
		}
		other := ""
		switch viewerID {
		case in.fromID:
			other = in.toID
		case in.toID:
			other = in.fromID
		}
		if other == "" || seen[other] {
			continue
		}
		seen[other] = true
		out = append(out, s.accounts[other].user.Clone())
	}
	return out
}

func chatKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (s *state) appendMessage(senderID, targetID, text string) chatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := chatMessage{senderID: senderID, text: text, createdAt: time.Now()}
	key := chatKey(senderID, targetID)
	s.chats[key] = append(s.chats[key], m)
	return m
}

func (s *state) history(a, b string) []chatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chatMessage(nil), s.chats[chatKey(a, b)]...)
}
