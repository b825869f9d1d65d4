package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/devserver"
	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/store"
)

func seedFeed(t *testing.T, env *testEnv, n int) {
	t.Helper()
	env.seed(t, models.User{ID: "me", FirstName: "Ada", LastName: "Lovelace"})
	for _, c := range makeCandidates(n) {
		env.seed(t, c)
	}
}

func feedIDs(list []models.FeedCandidate) []string {
	ids := make([]string, len(list))
	for i, u := range list {
		ids[i] = u.ID
	}
	return ids
}

func containsID(list []models.FeedCandidate, id string) bool {
	for _, u := range list {
		if u.ID == id {
			return true
		}
	}
	return false
}

func TestPassRemovesCandidateEndToEnd(t *testing.T) {
	env := newTestEnv(t, devserver.Options{}, nil)
	seedFeed(t, env, 5)
	env.login(t, "me")

	profile, err := NewProfileService(env.sessions, env.store).FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if profile.ID != "me" {
		t.Fatalf("profile = %+v", profile)
	}

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()

	candidates, err := feed.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(candidates) != 5 {
		t.Fatalf("feed size = %d, want 5", len(candidates))
	}

	first, ok := feed.Current()
	if !ok {
		t.Fatal("no visible candidate")
	}
	out, err := feed.Act(context.Background(), first.ID, Pass)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if out.Match {
		t.Error("pass must not match")
	}

	remaining := env.store.Feed()
	if len(remaining) != 4 || containsID(remaining, first.ID) {
		t.Errorf("feed = %v", feedIDs(remaining))
	}
	if n := env.rec.count("/request/send/ignored/" + first.ID); n != 1 {
		t.Errorf("ignored requests = %d, want 1", n)
	}
	if feed.State(first.ID) != SwipeConfirmed {
		t.Errorf("state = %v", feed.State(first.ID))
	}
	view, index := feed.View()
	if len(view) != 4 || index != 0 {
		t.Errorf("view = %v index = %d", feedIDs(view), index)
	}

	// the backend no longer offers a decided candidate
	again, err := feed.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if containsID(again, first.ID) {
		t.Error("decided candidate returned by refreshed feed")
	}
}

func TestActRemovesCandidateBeforeResponse(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	env := newTestEnv(t, devserver.Options{}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/request/send/") {
				entered <- struct{}{}
				<-release
			}
			next.ServeHTTP(w, r)
		})
	})
	seedFeed(t, env, 2)
	env.login(t, "me")

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(), 1)
	defer feed.Close()
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := feed.Act(context.Background(), "c0", Like)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		close(release)
		t.Fatal("request never reached the backend")
	}

	if containsID(env.store.Feed(), "c0") {
		t.Error("candidate still in feed while request is in flight")
	}
	if got := feed.State("c0"); got != SwipePending {
		t.Errorf("state while in flight = %v, want pending", got)
	}
	if cur, _ := feed.Current(); cur.ID != "c1" {
		t.Errorf("visible candidate = %q, want c1", cur.ID)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Act: %v", err)
	}
	if got := feed.State("c0"); got != SwipeConfirmed {
		t.Errorf("state = %v, want confirmed", got)
	}
}

func TestActFailureDoesNotRestoreCandidate(t *testing.T) {
	env := newTestEnv(t, devserver.Options{}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/request/send/") {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"message":"database unavailable"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	seedFeed(t, env, 3)
	env.login(t, "me")

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	drain(env.events)

	_, err := feed.Act(context.Background(), "c1", Like)
	if !errors.Is(err, apperr.ErrServer) {
		t.Fatalf("err = %v, want server error", err)
	}
	if containsID(env.store.Feed(), "c1") {
		t.Error("failed candidate restored to feed")
	}
	if got := feed.State("c1"); got != SwipeRolledBack {
		t.Errorf("state = %v, want rolled_back", got)
	}

	events := drain(env.events)
	if countKind(events, notify.KindError) != 1 {
		t.Fatalf("events = %+v, want one error", events)
	}
	if events[0].Message != apperr.GenericMessage {
		t.Errorf("error message = %q", events[0].Message)
	}
}

func TestActUnauthorizedLeavesRedirectToSession(t *testing.T) {
	env := newTestEnv(t, devserver.Options{}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/request/send/") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	seedFeed(t, env, 2)
	env.login(t, "me")

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := feed.Act(context.Background(), "c0", Like); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want auth error", err)
	}
	events := drain(env.events)
	if countKind(events, notify.KindError) != 0 {
		t.Errorf("auth failure surfaced as error event: %+v", events)
	}
	if countKind(events, notify.KindNavigateLogin) != 1 {
		t.Errorf("navigate events = %d, want 1", countKind(events, notify.KindNavigateLogin))
	}
	if len(env.store.Feed()) != 0 {
		t.Error("feed must be cleared with the session")
	}
}

func TestSuperlikeBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, devserver.Options{}, nil)
	seedFeed(t, env, 3)
	env.login(t, "me")

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := feed.Act(context.Background(), "c0", Superlike); err != nil {
		t.Fatalf("first superlike: %v", err)
	}
	if feed.SuperlikesLeft() != 0 {
		t.Errorf("superlikes left = %d", feed.SuperlikesLeft())
	}
	drain(env.events)

	_, err := feed.Act(context.Background(), "c1", Superlike)
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want quota exceeded", err)
	}
	if n := env.rec.count("/request/send/superlike/c1"); n != 0 {
		t.Errorf("quota-blocked superlike reached the backend %d times", n)
	}
	if !containsID(env.store.Feed(), "c1") {
		t.Error("quota-blocked candidate removed from feed")
	}
	if feed.State("c1") != SwipeVisible {
		t.Errorf("state = %v, want visible", feed.State("c1"))
	}
	if countKind(drain(env.events), notify.KindError) != 1 {
		t.Error("quota failure not surfaced")
	}

	// likes are unaffected by the budget
	if _, err := feed.Act(context.Background(), "c1", Like); err != nil {
		t.Errorf("like after quota: %v", err)
	}
}

func TestMutualLikeEmitsMatch(t *testing.T) {
	env := newTestEnv(t, devserver.Options{}, nil)
	seedFeed(t, env, 2)

	other, _ := env.clientFor(t, "c1")
	if err := other.Do(context.Background(), http.MethodPost, "/request/send/interested/me", nil, nil); err != nil {
		t.Fatalf("counterpart like: %v", err)
	}

	env.login(t, "me")
	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	out, err := feed.Act(context.Background(), "c1", Like)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if !out.Match || out.Candidate.ID != "c1" {
		t.Fatalf("outcome = %+v, want match with c1", out)
	}

	var match *notify.Event
	for _, e := range drain(env.events) {
		if e.Kind == notify.KindMatch {
			e := e
			match = &e
		}
	}
	if match == nil {
		t.Fatal("no match event")
	}
	if match.UserID != "c1" || match.UserName != "Dev1 Coder" {
		t.Errorf("match event = %+v", match)
	}

	conns, err := NewConnectionService(env.sessions, env.store).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 || conns[0].ID != "c1" {
		t.Errorf("connections = %+v", conns)
	}
}

func TestInvalidDirection(t *testing.T) {
	api := &fakeAPI{handle: func(context.Context, string, string) (interface{}, error) { return nil, nil }}
	st := store.New()
	st.SetFeed(makeCandidates(1))
	feed := NewFeedController(api, st, notify.NewDispatcher(), 1)
	defer feed.Close()

	if _, err := feed.Act(context.Background(), "c0", Direction("maybe")); err == nil {
		t.Fatal("expected error")
	}
	if len(api.calls) != 0 || len(st.Feed()) != 1 {
		t.Error("invalid direction must not touch the feed or the backend")
	}
}

func TestParseMatch(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"match":true}`, true},
		{`{"isMatch":true}`, true},
		{`{"data":{"match":true}}`, true},
		{`{"data":{"status":"accepted"}}`, true},
		{`{"data":{"status":"interested"}}`, false},
		{`{"message":"Request sent"}`, false},
		{``, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		if got := parseMatch([]byte(tt.raw)); got != tt.want {
			t.Errorf("parseMatch(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRefillIfExhaustedSharesOneFetch(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{handle: func(ctx context.Context, method, path string) (interface{}, error) {
		<-gate
		return makeCandidates(3), nil
	}}
	st := store.New()
	feed := NewFeedController(api, st, notify.NewDispatcher(), 1)
	defer feed.Close()

	if !feed.Exhausted() {
		t.Fatal("empty feed should be exhausted")
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.RefillIfExhausted(context.Background()); err != nil {
				t.Errorf("RefillIfExhausted: %v", err)
			}
		}()
	}
	waitFor(t, func() bool { return api.count("GET /feed") == 1 })
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := api.count("GET /feed"); n != 1 {
		t.Errorf("feed fetches = %d, want 1", n)
	}
	if len(st.Feed()) != 3 || feed.Exhausted() {
		t.Errorf("feed = %v", feedIDs(st.Feed()))
	}

	// a non-exhausted view does not fetch
	if err := feed.RefillIfExhausted(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := api.count("GET /feed"); n != 1 {
		t.Errorf("feed fetches = %d, want 1", n)
	}
}

func TestRefillAfterLastCandidate(t *testing.T) {
	var fetches int32
	api := &fakeAPI{handle: func(ctx context.Context, method, path string) (interface{}, error) {
		if path == "/feed" {
			atomic.AddInt32(&fetches, 1)
			return map[string]interface{}{"data": makeCandidates(2)}, nil
		}
		return map[string]string{"message": "ok"}, nil
	}}
	st := store.New()
	st.SetFeed(makeCandidates(1))
	feed := NewFeedController(api, st, notify.NewDispatcher(), 1)
	defer feed.Close()

	if _, err := feed.Act(context.Background(), "c0", Pass); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&fetches) != 1 {
		t.Errorf("fetches = %d, want refill after last card", fetches)
	}
	view, index := feed.View()
	if len(view) != 2 || index != 0 {
		t.Errorf("view = %v index = %d", feedIDs(view), index)
	}
}

func TestStaleFeedResponseDiscarded(t *testing.T) {
	var calls int32
	firstGate := make(chan struct{})
	api := &fakeAPI{handle: func(ctx context.Context, method, path string) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-firstGate
			return []models.User{{ID: "old"}}, nil
		}
		return []models.User{{ID: "new"}}, nil
	}}
	st := store.New()
	feed := NewFeedController(api, st, notify.NewDispatcher(), 1)
	defer feed.Close()

	staleDone := make(chan []models.FeedCandidate, 1)
	go func() {
		got, err := feed.Refresh(context.Background())
		if err != nil {
			t.Errorf("stale Refresh: %v", err)
		}
		staleDone <- got
	}()
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })

	latest, err := feed.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].ID != "new" {
		t.Fatalf("latest = %v", feedIDs(latest))
	}

	close(firstGate)
	if got := <-staleDone; got != nil {
		t.Errorf("stale response applied: %v", feedIDs(got))
	}
	if ids := feedIDs(st.Feed()); len(ids) != 1 || ids[0] != "new" {
		t.Errorf("store feed = %v, want [new]", ids)
	}
}

func TestFilterNarrowsViewAndResetsIndex(t *testing.T) {
	st := store.New()
	st.SetFeed(makeCandidates(5)) // ages 20..24
	feed := NewFeedController(&fakeAPI{}, st, notify.NewDispatcher(), 1)
	defer feed.Close()

	minAge := 22
	feed.SetFilter(FilterSpec{MinAge: &minAge})
	view, index := feed.View()
	if got := feedIDs(view); strings.Join(got, ",") != "c2,c3,c4" || index != 0 {
		t.Errorf("view = %v index = %d", got, index)
	}

	// store changes are re-filtered
	st.RemoveFeedCandidate("c2")
	view, _ = feed.View()
	if got := feedIDs(view); strings.Join(got, ",") != "c3,c4" {
		t.Errorf("view after removal = %v", got)
	}

	feed.SetFilter(FilterSpec{})
	view, _ = feed.View()
	if len(view) != 4 {
		t.Errorf("unfiltered view = %v", feedIDs(view))
	}
}

func TestRefreshDropsFeedFetchedBeforeSessionEnded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	env := newTestEnv(t, devserver.Options{}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/feed":
				close(entered)
				<-release
			case "/user/connections":
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Token expired"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	seedFeed(t, env, 3)
	env.login(t, "me")

	feed := NewFeedController(env.sessions, env.store, notify.NewDispatcher(env.events), 1)
	defer feed.Close()

	type result struct {
		list []models.FeedCandidate
		err  error
	}
	done := make(chan result, 1)
	go func() {
		list, err := feed.Refresh(context.Background())
		done <- result{list, err}
	}()
	<-entered

	err := env.sessions.Do(context.Background(), http.MethodGet, "/user/connections", nil, nil)
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want auth", err)
	}
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Refresh: %v", res.err)
	}
	if len(res.list) != 0 {
		t.Errorf("Refresh returned %v after session ended", feedIDs(res.list))
	}
	if got := env.store.Feed(); len(got) != 0 {
		t.Errorf("store feed = %v, want empty", feedIDs(got))
	}
	if env.sessions.Authenticated(context.Background()) {
		t.Error("session still authenticated")
	}
}
