package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"techtribe-client/internal/models"
	"techtribe-client/internal/store"

	"github.com/rs/zerolog/log"
)

// ProfileService reads and edits the current user's profile
type ProfileService struct {
	api   Requester
	store *store.Store
}

// NewProfileService creates a new profile service
func NewProfileService(api Requester, st *store.Store) *ProfileService {
	return &ProfileService{api: api, store: st}
}

// userEnvelope accepts a user either bare or wrapped in data
type userEnvelope struct {
	models.User
}

func (e *userEnvelope) UnmarshalJSON(b []byte) error {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err == nil && len(wrapped.Data) > 0 && !bytes.Equal(wrapped.Data, []byte("null")) {
		b = wrapped.Data
	}
	return json.Unmarshal(b, &e.User)
}

// FetchProfile loads the current user and replaces it in the store
func (s *ProfileService) FetchProfile(ctx context.Context) (*models.User, error) {
	var resp userEnvelope
	if err := s.api.Do(ctx, http.MethodGet, "/profile", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	s.store.SetUser(resp.User)
	return &resp.User, nil
}

// EditProfile sends the changed fields and replaces the stored user with the result
func (s *ProfileService) EditProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	var resp userEnvelope
	if err := s.api.Do(ctx, http.MethodPost, "/profile/edit", upd, &resp); err != nil {
		return nil, fmt.Errorf("failed to edit profile: %w", err)
	}
	s.store.SetUser(resp.User)

	log.Info().Str("user_id", resp.User.ID).Msg("Profile updated")

	return &resp.User, nil
}

// ConnectionService loads mutual matches
type ConnectionService struct {
	api   Requester
	store *store.Store
}

// NewConnectionService creates a new connection service
func NewConnectionService(api Requester, st *store.Store) *ConnectionService {
	return &ConnectionService{api: api, store: st}
}

// Fetch replaces the stored connections with the backend's list
func (s *ConnectionService) Fetch(ctx context.Context) ([]models.Connection, error) {
	var resp struct {
		Data []models.Connection `json:"data"`
	}
	if err := s.api.Do(ctx, http.MethodGet, "/user/connections", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch connections: %w", err)
	}
	s.store.SetConnections(resp.Data)
	return resp.Data, nil
}
