// Package devserver is an in-memory implementation of the TechTribe REST and
// realtime contract, used for local development and end-to-end tests.
package devserver

import (
	"net/http"
	"time"

	"techtribe-client/internal/models"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Options tunes backend behaviour that real deployments are inconsistent about
type Options struct {
	// NestedToken returns the session token under data.token instead of top-level token
	NestedToken bool
	// Now overrides the clock used for token issue and validation
	Now func() time.Time
}

// Server is the development backend
type Server struct {
	opts   Options
	state  *state
	tokens *tokenIssuer
	hub    *hub
}

// New creates a backend signing tokens with secret
func New(secret string, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		opts:   opts,
		state:  newState(),
		tokens: &tokenIssuer{secret: []byte(secret), now: now},
		hub:    newHub(),
	}
}

// Seed adds an account and returns the stored user (with an ID assigned when empty)
func (s *Server) Seed(u models.User, email, password string) (models.User, error) {
	return s.state.createAccount(u, email, password)
}

// Online reports whether userID holds at least one realtime connection
func (s *Server) Online(userID string) bool {
	return s.hub.isOnline(userID)
}

// Handler returns the HTTP handler serving the full contract
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
	}).Handler)

	// Public routes
	r.Post("/login", s.Login)
	r.Post("/signup", s.Signup)
	r.Get("/ws", s.handleWebSocket)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/logout", s.Logout)
		r.Get("/profile", s.Profile)
		r.Post("/profile/edit", s.EditProfile)
		r.Get("/feed", s.Feed)
		r.Get("/user/connections", s.Connections)
		r.Get("/user/requests/recieved", s.ReceivedRequests)
		r.Post("/request/send/{status}/{userId}", s.SendRequest)
		r.Post("/request/review/{status}/{requestId}", s.ReviewRequest)
		r.Get("/chat/{targetUserId}", s.Chat)
	})

	return r
}
