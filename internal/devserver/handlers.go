package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"techtribe-client/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// respondJSON writes v with the given status
func respondJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// respondError sends an error response in the shape the client reads
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, map[string]string{"message": message}, statusCode)
}

type loginRequest struct {
	Email    string `json:"Email"`
	Password string `json:"password"`
}

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email"`
	Password  string `json:"password"`
}

// authResponse places the token where the configured layout says
func (s *Server) authResponse(w http.ResponseWriter, message string, user models.User) {
	token, err := s.tokens.issue(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to issue token")
		respondError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	if s.opts.NestedToken {
		data := struct {
			models.User
			Token string `json:"token"`
		}{User: user, Token: token}
		respondJSON(w, map[string]interface{}{"message": message, "data": data}, http.StatusOK)
		return
	}
	respondJSON(w, map[string]interface{}{"message": message, "token": token, "data": user}, http.StatusOK)
}

// Login handles POST /login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, ok := s.state.authenticate(req.Email, req.Password)
	if !ok {
		respondError(w, "Invalid credentials", http.StatusBadRequest)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User logged in")
	s.authResponse(w, "Login successful", user)
}

// Signup handles POST /signup
func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirstName == "" {
		respondError(w, "firstName is required", http.StatusBadRequest)
		return
	}

	user, err := s.state.createAccount(models.User{FirstName: req.FirstName, LastName: req.LastName}, req.Email, req.Password)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User signed up")
	s.authResponse(w, "User added successfully", user)
}

// Logout handles POST /logout
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"message": "Logged out"}, http.StatusOK)
}

// Profile handles GET /profile
func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	user, _ := s.state.user(getUserID(r.Context()))
	respondJSON(w, user, http.StatusOK)
}

// EditProfile handles POST /profile/edit
func (s *Server) EditProfile(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())

	var upd models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.state.updateUser(userID, upd)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, map[string]interface{}{"message": "Profile updated", "data": user}, http.StatusOK)
}

// Feed handles GET /feed
func (s *Server) Feed(w http.ResponseWriter, r *http.Request) {
	feed := s.state.feed(getUserID(r.Context()))
	if feed == nil {
		feed = []models.User{}
	}
	respondJSON(w, feed, http.StatusOK)
}

// Connections handles GET /user/connections
func (s *Server) Connections(w http.ResponseWriter, r *http.Request) {
	conns := s.state.connections(getUserID(r.Context()))
	if conns == nil {
		conns = []models.User{}
	}
	respondJSON(w, map[string]interface{}{"data": conns}, http.StatusOK)
}

// ReceivedRequests handles GET /user/requests/recieved
func (s *Server) ReceivedRequests(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{"data": s.state.received(getUserID(r.Context()))}, http.StatusOK)
}

// SendRequest handles POST /request/send/{status}/{userId}
func (s *Server) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	status := models.RequestStatus(chi.URLParam(r, "status"))
	targetID := chi.URLParam(r, "userId")

	switch status {
	case models.RequestInterested, models.RequestSuperlike, "ignored":
	default:
		respondError(w, "Invalid status type: "+string(status), http.StatusBadRequest)
		return
	}

	in, match, err := s.state.send(userID, targetID, status)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("target_user_id", targetID).
		Str("status", string(status)).
		Bool("match", match).
		Msg("Request sent")

	respondJSON(w, map[string]interface{}{
		"message": "Request sent",
		"match":   match,
		"data": map[string]interface{}{
			"_id":        in.id,
			"fromUserId": in.fromID,
			"toUserId":   in.toID,
			"status":     in.status,
		},
	}, http.StatusOK)
}

// ReviewRequest handles POST /request/review/{status}/{requestId}
func (s *Server) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	status := models.RequestStatus(chi.URLParam(r, "status"))
	requestID := chi.URLParam(r, "requestId")

	if status != models.RequestAccepted && status != models.RequestRejected {
		respondError(w, "Invalid status type: "+string(status), http.StatusBadRequest)
		return
	}

	in, err := s.state.review(userID, requestID, status)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, map[string]interface{}{
		"message": "Request " + string(status),
		"data": map[string]interface{}{
			"_id":    in.id,
			"status": in.status,
		},
	}, http.StatusOK)
}

type historySender struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"LastName"`
}

type historyMessage struct {
	SenderID  historySender `json:"senderId"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Chat handles GET /chat/{targetUserId}
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	targetID := chi.URLParam(r, "targetUserId")

	target, ok := s.state.user(targetID)
	if !ok {
		respondError(w, "user not found", http.StatusNotFound)
		return
	}
	self, _ := s.state.user(userID)
	names := map[string]models.User{self.ID: self, target.ID: target}

	msgs := s.state.history(userID, targetID)
	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		sender := names[m.senderID]
		out = append(out, historyMessage{
			SenderID:  historySender{ID: sender.ID, FirstName: sender.FirstName, LastName: sender.LastName},
			Text:      m.text,
			CreatedAt: m.createdAt,
		})
	}

	respondJSON(w, map[string]interface{}{
		"messages":     out,
		"participants": []models.User{self, target},
	}, http.StatusOK)
}
