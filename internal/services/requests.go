package services

import (
	"context"
	"fmt"
	"net/http"

	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/store"

	"github.com/rs/zerolog/log"
)

// RequestService loads and reviews incoming connection requests
type RequestService struct {
	api    Requester
	store  *store.Store
	events *notify.Dispatcher
}

// NewRequestService creates a new request service
func NewRequestService(api Requester, st *store.Store, events *notify.Dispatcher) *RequestService {
	return &RequestService{api: api, store: st, events: events}
}

// Fetch replaces the stored requests and announces requests not seen before
func (s *RequestService) Fetch(ctx context.Context) ([]models.ConnectionRequest, error) {
	var resp struct {
		Data []models.ConnectionRequest `json:"data"`
	}
	if err := s.api.Do(ctx, http.MethodGet, "/user/requests/recieved", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch requests: %w", err)
	}

	known := make(map[string]bool)
	for _, r := range s.store.Requests() {
		known[r.ID] = true
	}
	s.store.SetRequests(resp.Data)

	for _, r := range resp.Data {
		if known[r.ID] {
			continue
		}
		s.events.Publish(ctx, notify.Event{
			Kind:     notify.KindConnectionRequest,
			UserID:   r.FromUser.ID,
			UserName: r.FromUser.FullName(),
		})
	}
	return resp.Data, nil
}

// Review accepts or rejects a request. The request leaves the store before the
// backend answers and is not restored on failure.
func (s *RequestService) Review(ctx context.Context, requestID string, status models.RequestStatus) error {
	if status != models.RequestAccepted && status != models.RequestRejected {
		return fmt.Errorf("invalid review status %q", status)
	}

	req, known := s.store.Request(requestID)
	s.store.RemoveRequest(requestID)

	path := fmt.Sprintf("/request/review/%s/%s", status, requestID)
	if err := s.api.Do(ctx, http.MethodPost, path, nil, nil); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("Failed to review request")
		publishFailure(ctx, s.events, err)
		return fmt.Errorf("failed to review request: %w", err)
	}

	log.Info().
		Str("request_id", requestID).
		Str("status", string(status)).
		Msg("Request reviewed")

	if status == models.RequestAccepted && known {
		s.events.Publish(ctx, notify.Event{
			Kind:     notify.KindMatch,
			UserID:   req.FromUser.ID,
			UserName: req.FromUser.FullName(),
		})
	}
	return nil
}
