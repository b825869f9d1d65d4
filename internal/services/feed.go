package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/store"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Direction is the user's decision on a feed candidate
type Direction string

const (
	Like      Direction = "like"
	Pass      Direction = "pass"
	Superlike Direction = "superlike"
)

// requestStatus maps a direction to the backend's send status
func (d Direction) requestStatus() (string, error) {
	switch d {
	case Like:
		return "interested", nil
	case Pass:
		return "ignored", nil
	case Superlike:
		return "superlike", nil
	default:
		return "", fmt.Errorf("unknown direction %q", d)
	}
}

// SwipeState tracks a candidate through an action
type SwipeState int

const (
	SwipeVisible SwipeState = iota
	SwipePending
	SwipeConfirmed
	SwipeRolledBack
)

func (s SwipeState) String() string {
	switch s {
	case SwipePending:
		return "pending"
	case SwipeConfirmed:
		return "confirmed"
	case SwipeRolledBack:
		return "rolled_back"
	default:
		return "visible"
	}
}

// Outcome is the result of a confirmed action
type Outcome struct {
	Candidate models.FeedCandidate
	Match     bool
}

// FeedController applies swipe actions to the feed optimistically and keeps it filled
type FeedController struct {
	api             Requester
	store           *store.Store
	events          *notify.Dispatcher
	superlikeBudget int

	mu             sync.Mutex
	superlikesUsed int
	filter         FilterSpec
	view           []models.FeedCandidate
	index          int
	states         map[string]SwipeState
	fetchGen       uint64

	// applyMu orders the latest-fetch check with the store write
	applyMu     sync.Mutex
	refill      singleflight.Group
	unsubscribe func()
}

// NewFeedController creates a controller over the store's feed
func NewFeedController(api Requester, st *store.Store, events *notify.Dispatcher, superlikeBudget int) *FeedController {
	c := &FeedController{
		api:             api,
		store:           st,
		events:          events,
		superlikeBudget: superlikeBudget,
		states:          make(map[string]SwipeState),
	}
	c.view = ApplyFilters(st.Feed(), c.filter)
	c.unsubscribe = st.Subscribe(c.onStoreChange)
	return c
}

// Close stops following store changes
func (c *FeedController) Close() {
	c.unsubscribe()
}

func (c *FeedController) onStoreChange(changed store.Collection, snap store.Snapshot) {
	if changed != store.CollectionFeed {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = ApplyFilters(snap.Feed, c.filter)
	c.index = 0
}

// SetFilter replaces the filter and returns to the top of the view
func (c *FeedController) SetFilter(f FilterSpec) {
	feed := c.store.Feed()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
	c.view = ApplyFilters(feed, f)
	c.index = 0
}

// Filter returns the active filter
func (c *FeedController) Filter() FilterSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// View returns the filtered feed and the visible index
func (c *FeedController) View() ([]models.FeedCandidate, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.FeedCandidate, len(c.view))
	for i, u := range c.view {
		out[i] = u.Clone()
	}
	return out, c.index
}

// Current returns the visible candidate
func (c *FeedController) Current() (models.FeedCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index >= len(c.view) {
		return models.FeedCandidate{}, false
	}
	return c.view[c.index].Clone(), true
}

// State returns where candidateID is in the action lifecycle
func (c *FeedController) State(candidateID string) SwipeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[candidateID]
}

// SuperlikesLeft returns the remaining super-like budget
func (c *FeedController) SuperlikesLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if left := c.superlikeBudget - c.superlikesUsed; left > 0 {
		return left
	}
	return 0
}

type sendResponse struct {
	Match   bool `json:"match"`
	IsMatch bool `json:"isMatch"`
	Data    struct {
		Match  bool   `json:"match"`
		Status string `json:"status"`
	} `json:"data"`
}

func parseMatch(raw json.RawMessage) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}
	var r sendResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return false
	}
	return r.Match || r.IsMatch || r.Data.Match || r.Data.Status == string(models.RequestAccepted)
}

// Act records the user's decision on a candidate. The candidate leaves the feed
// before the request is issued and is not restored if the request fails.
func (c *FeedController) Act(ctx context.Context, candidateID string, dir Direction) (*Outcome, error) {
	status, err := dir.requestStatus()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if dir == Superlike {
		if c.superlikesUsed >= c.superlikeBudget {
			c.mu.Unlock()
			qerr := apperr.Quota("super-like budget exhausted")
			publishFailure(ctx, c.events, qerr)
			return nil, qerr
		}
		c.superlikesUsed++
	}
	c.states[candidateID] = SwipePending
	c.mu.Unlock()

	var candidate models.FeedCandidate
	for _, u := range c.store.Feed() {
		if u.ID == candidateID {
			candidate = u
			break
		}
	}
	if candidate.ID == "" {
		candidate.ID = candidateID
	}

	c.store.RemoveFeedCandidate(candidateID)

	var raw json.RawMessage
	path := fmt.Sprintf("/request/send/%s/%s", status, candidateID)
	if err := c.api.Do(ctx, http.MethodPost, path, nil, &raw); err != nil {
		c.setState(candidateID, SwipeRolledBack)
		log.Warn().
			Err(err).
			Str("candidate_id", candidateID).
			Str("direction", string(dir)).
			Msg("Swipe action failed")
		publishFailure(ctx, c.events, err)
		return nil, fmt.Errorf("failed to send %s: %w", status, err)
	}

	c.setState(candidateID, SwipeConfirmed)
	outcome := &Outcome{Candidate: candidate, Match: parseMatch(raw)}

	log.Info().
		Str("candidate_id", candidateID).
		Str("direction", string(dir)).
		Bool("match", outcome.Match).
		Msg("Swipe confirmed")

	if outcome.Match {
		c.events.Publish(ctx, notify.Event{
			Kind:     notify.KindMatch,
			UserID:   candidate.ID,
			UserName: candidate.FullName(),
		})
	}

	if err := c.RefillIfExhausted(ctx); err != nil {
		log.Warn().Err(err).Msg("Feed refill failed")
	}

	return outcome, nil
}

func (c *FeedController) setState(id string, s SwipeState) {
	c.mu.Lock()
	c.states[id] = s
	c.mu.Unlock()
}

// Exhausted reports whether the visible index is past the end of the view
func (c *FeedController) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index >= len(c.view)
}

// RefillIfExhausted fetches a fresh feed when the view has run out.
// Concurrent callers share a single fetch.
func (c *FeedController) RefillIfExhausted(ctx context.Context) error {
	if !c.Exhausted() {
		return nil
	}
	_, err, shared := c.refill.Do("feed", func() (interface{}, error) {
		return c.Refresh(ctx)
	})
	if shared {
		log.Debug().Msg("Joined in-flight feed refill")
	}
	return err
}

// Refresh fetches the feed and replaces the store's copy. A response is applied only
// if no later fetch was issued and the session was not cleared while it was in flight.
func (c *FeedController) Refresh(ctx context.Context) ([]models.FeedCandidate, error) {
	c.mu.Lock()
	c.fetchGen++
	gen := c.fetchGen
	c.mu.Unlock()
	session := c.store.Session()

	var resp feedResponse
	if err := c.api.Do(ctx, http.MethodGet, "/feed", nil, &resp); err != nil {
		publishFailure(ctx, c.events, err)
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	latest := gen == c.fetchGen
	c.mu.Unlock()
	if !latest {
		log.Debug().Uint64("generation", gen).Msg("Discarding stale feed response")
		return nil, nil
	}

	if !c.store.SetSessionFeed(session, resp.candidates) {
		log.Debug().Uint64("generation", gen).Msg("Discarding feed fetched before session ended")
		return nil, nil
	}

	log.Debug().Int("count", len(resp.candidates)).Msg("Feed refreshed")

	return resp.candidates, nil
}

// feedResponse accepts the feed as a bare array or wrapped in data
type feedResponse struct {
	candidates []models.FeedCandidate
}

func (r *feedResponse) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &r.candidates); err == nil {
		return nil
	}
	var wrapped struct {
		Data []models.FeedCandidate `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	r.candidates = wrapped.Data
	return nil
}

// publishFailure surfaces a recoverable failure. Auth failures are handled by the
// session manager and cancellations are not user-visible.
func publishFailure(ctx context.Context, events *notify.Dispatcher, err error) {
	if apperr.KindOf(err) == apperr.KindAuth || errors.Is(err, context.Canceled) {
		return
	}
	events.Publish(ctx, notify.Event{
		Kind:    notify.KindError,
		Message: apperr.UserMessage(err),
		Err:     err,
	})
}
