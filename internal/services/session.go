package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/repository"
	"techtribe-client/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// tokenKey is the single key the bearer token is persisted under
const tokenKey = "token"

// ErrLoginRequired is returned without a network call when a guarded read is made with no session
var ErrLoginRequired = &apperr.Error{Kind: apperr.KindAuth, Status: http.StatusUnauthorized, Message: "login required"}

// guardedPaths are reads that always fail without a token, so they are never issued without one
var guardedPaths = map[string]bool{
	"/feed":                   true,
	"/profile":                true,
	"/user/requests/recieved": true,
}

// Requester issues authenticated backend calls
type Requester interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
}

// Credentials are the login form values
type Credentials struct {
	Email    string `json:"Email"`
	Password string `json:"password"`
}

// ProfileSeed are the signup form values
type ProfileSeed struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email"`
	Password  string `json:"password"`
}

// Session is an authenticated client session
type Session struct {
	Token string
	User  models.User
}

// SessionManager owns the bearer token and every HTTP call to the backend
type SessionManager struct {
	baseURL    string
	httpClient *http.Client
	tokens     repository.KVStore
	store      *store.Store
	events     *notify.Dispatcher
	now        func() time.Time

	// sessionMu guards gen and serializes token changes so one rejected session produces one redirect
	sessionMu sync.Mutex
	// gen advances whenever the session is established or ended
	gen uint64
}

// NewSessionManager creates a session manager for the backend at baseURL
func NewSessionManager(baseURL string, timeout time.Duration, tokens repository.KVStore, st *store.Store, events *notify.Dispatcher) *SessionManager {
	return &SessionManager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		store:      st,
		events:     events,
		now:        time.Now,
	}
}

// Token returns the persisted token, or "" when there is no session
func (s *SessionManager) Token(ctx context.Context) (string, error) {
	token, ok, err := s.tokens.Get(ctx, tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Authenticated reports whether a session token is present
func (s *SessionManager) Authenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	return err == nil && token != ""
}

// Login authenticates with email and password
func (s *SessionManager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	return s.authenticate(ctx, "/login", creds)
}

// Signup creates an account and authenticates as it
func (s *SessionManager) Signup(ctx context.Context, seed ProfileSeed) (*Session, error) {
	return s.authenticate(ctx, "/signup", seed)
}

type authPayload struct {
	models.User
	Token string `json:"token"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *SessionManager) authenticate(ctx context.Context, path string, body interface{}) (*Session, error) {
	status, raw, err := s.roundTrip(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		msg := serverMessage(raw)
		if msg == "" {
			msg = apperr.GenericMessage
		}
		log.Warn().Str("path", path).Int("status", status).Msg("Authentication rejected")
		return nil, &apperr.Error{Kind: apperr.KindAuth, Status: status, Message: msg}
	}

	var resp authResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuth, Status: status, Message: apperr.GenericMessage, Err: err}
	}

	// The backend returns the profile under data for some endpoints and at the top level for others
	var payload authPayload
	src := []byte(resp.Data)
	if len(src) == 0 || string(src) == "null" {
		src = raw
	}
	if err := json.Unmarshal(src, &payload); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindAuth, Status: status, Message: apperr.GenericMessage, Err: err}
	}

	token := resp.Token
	if token == "" {
		token = payload.Token
	}
	s.sessionMu.Lock()
	if token != "" {
		if err := s.tokens.Set(ctx, tokenKey, token); err != nil {
			s.sessionMu.Unlock()
			return nil, fmt.Errorf("failed to persist session token: %w", err)
		}
	} else {
		log.Warn().Str("path", path).Msg("Authentication response carried no token")
	}
	s.gen++
	s.store.SetUser(payload.User)
	s.sessionMu.Unlock()

	log.Info().Str("user_id", payload.User.ID).Msg("Session established")

	return &Session{Token: token, User: payload.User}, nil
}

// Logout ends the session. The backend call is best-effort; local state is always cleared.
func (s *SessionManager) Logout(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read token for logout")
	}
	if token != "" {
		if status, _, err := s.roundTrip(ctx, http.MethodPost, "/logout", nil, token); err != nil {
			log.Warn().Err(err).Msg("Logout request failed")
		} else if status >= 400 {
			log.Warn().Int("status", status).Msg("Logout request rejected")
		}
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.gen++
	s.store.ClearSession()
	if err := s.tokens.Delete(ctx, tokenKey); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}

	log.Info().Msg("Logged out")
	return nil
}

// Do issues an authenticated request and decodes a JSON response into out when out is non-nil.
// A 401 tears the session down and is never retried.
func (s *SessionManager) Do(ctx context.Context, method, path string, body, out interface{}) error {
	token, gen, err := s.current(ctx)
	if err != nil {
		return err
	}

	if token != "" && s.expired(token) {
		log.Info().Msg("Session token expired")
		s.teardown(ctx, gen)
		return apperr.Auth("session expired")
	}

	if token == "" && guardedPaths[path] {
		s.events.Publish(ctx, notify.Event{Kind: notify.KindNavigateLogin})
		return ErrLoginRequired
	}

	status, raw, err := s.roundTrip(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		log.Warn().Str("path", path).Bool("had_token", token != "").Msg("Backend rejected session")
		s.teardown(ctx, gen)
		return apperr.Auth(serverMessage(raw))
	}
	if status >= 400 {
		return apperr.FromStatus(status, serverMessage(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.Error{Kind: apperr.KindServer, Status: status, Message: "unexpected response", Err: err}
	}
	return nil
}

// current returns the token together with the session generation it belongs to
func (s *SessionManager) current(ctx context.Context) (string, uint64, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	token, err := s.Token(ctx)
	return token, s.gen, err
}

// teardown ends session generation gen. Only the first caller for a given generation
// clears local state and emits the login redirect; a session established since is left alone.
func (s *SessionManager) teardown(ctx context.Context, gen uint64) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.gen != gen {
		return
	}
	s.gen++

	if err := s.tokens.Delete(ctx, tokenKey); err != nil {
		log.Error().Err(err).Msg("Failed to delete session token")
	}
	s.store.ClearSession()
	s.events.Publish(ctx, notify.Event{Kind: notify.KindNavigateLogin})
}

// expired reports whether token is a JWT whose exp claim has passed.
// Tokens that are not JWTs are never considered expired.
func (s *SessionManager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !s.now().Before(exp.Time)
}

func (s *SessionManager) roundTrip(ctx context.Context, method, path string, body interface{}, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return 0, nil, apperr.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apperr.Network(err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	return resp.StatusCode, raw, nil
}

// serverMessage extracts the human-readable message from an error body
func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		text := strings.TrimSpace(string(raw))
		if len(text) > 0 && len(text) < 200 && !strings.HasPrefix(text, "<") {
			return strings.TrimPrefix(text, "ERROR: ")
		}
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
