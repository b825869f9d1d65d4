package store

import (
	"reflect"
	"testing"

	"techtribe-client/internal/models"
)

func candidates(ids ...string) []models.FeedCandidate {
	out := make([]models.FeedCandidate, len(ids))
	for i, id := range ids {
		out[i] = models.FeedCandidate{ID: id, FirstName: "user-" + id, Skills: []string{"go"}}
	}
	return out
}

func feedIDs(s *Store) []string {
	var ids []string
	for _, c := range s.Feed() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestSetUserRoundTrip(t *testing.T) {
	s := New()
	u := models.User{
		ID:            "u1",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Age:           36,
		Skills:        []string{"math", "engines"},
		Interests:     []string{"poetry"},
		Verifications: map[string]bool{"github": true},
	}
	s.SetUser(u)

	got, ok := s.User()
	if !ok {
		t.Fatal("user missing after SetUser")
	}
	if !reflect.DeepEqual(got, u) {
		t.Fatalf("User() = %+v, want %+v", got, u)
	}

	got.Skills[0] = "mutated"
	again, _ := s.User()
	if again.Skills[0] != "math" {
		t.Fatal("store user aliased caller slice")
	}

	s.ClearUser()
	if _, ok := s.User(); ok {
		t.Fatal("user present after ClearUser")
	}
}

func TestRemoveFeedCandidateIdempotent(t *testing.T) {
	s := New()
	s.SetFeed(candidates("a", "b", "c"))

	s.RemoveFeedCandidate("b")
	once := feedIDs(s)
	s.RemoveFeedCandidate("b")
	twice := feedIDs(s)

	if !reflect.DeepEqual(once, []string{"a", "c"}) {
		t.Fatalf("after remove = %v", once)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second remove changed state: %v vs %v", once, twice)
	}
}

func TestRemoveFromEmptyFeed(t *testing.T) {
	s := New()
	s.SetFeed([]models.FeedCandidate{})
	s.RemoveFeedCandidate("anything")
	if len(s.Feed()) != 0 {
		t.Fatal("feed should stay empty")
	}
}

func TestSetFeedDropsDuplicates(t *testing.T) {
	s := New()
	s.SetFeed(candidates("a", "b", "a", "c"))
	if got := feedIDs(s); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("feed = %v", got)
	}
}

func TestRemoveRequestIdempotent(t *testing.T) {
	s := New()
	s.SetRequests([]models.ConnectionRequest{
		{ID: "r1", FromUser: models.User{ID: "u1"}, Status: models.RequestInterested},
		{ID: "r2", FromUser: models.User{ID: "u2"}, Status: models.RequestInterested},
	})

	s.RemoveRequest("r1")
	s.RemoveRequest("r1")

	reqs := s.Requests()
	if len(reqs) != 1 || reqs[0].ID != "r2" {
		t.Fatalf("requests = %+v", reqs)
	}
	if _, ok := s.Request("r1"); ok {
		t.Fatal("r1 still present")
	}
}

func TestListenersNotifiedOnChangeOnly(t *testing.T) {
	s := New()
	var changes []Collection
	unsubscribe := s.Subscribe(func(c Collection, _ Snapshot) {
		changes = append(changes, c)
	})

	s.SetFeed(candidates("a"))
	s.RemoveFeedCandidate("missing")
	s.RemoveFeedCandidate("a")
	s.RemoveRequest("missing")
	s.SetConnections([]models.Connection{{ID: "c1"}})

	want := []Collection{CollectionFeed, CollectionFeed, CollectionConnections}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}

	unsubscribe()
	s.SetFeed(nil)
	if len(changes) != len(want) {
		t.Fatal("listener called after unsubscribe")
	}
}

func TestListenerSeesPostMutationSnapshot(t *testing.T) {
	s := New()
	s.SetFeed(candidates("a", "b"))

	var seen []models.FeedCandidate
	s.Subscribe(func(_ Collection, snap Snapshot) {
		seen = snap.Feed
	})
	s.RemoveFeedCandidate("a")

	if len(seen) != 1 || seen[0].ID != "b" {
		t.Fatalf("snapshot feed = %+v", seen)
	}
}

func TestClearSession(t *testing.T) {
	s := New()
	s.SetUser(models.User{ID: "me"})
	s.SetFeed(candidates("a"))
	s.SetConnections([]models.Connection{{ID: "c"}})
	s.SetRequests([]models.ConnectionRequest{{ID: "r"}})

	s.ClearSession()

	snap := s.Snapshot()
	if snap.User != nil || len(snap.Feed) != 0 || len(snap.Connections) != 0 || len(snap.Requests) != 0 {
		t.Fatalf("snapshot after ClearSession = %+v", snap)
	}
}

func TestSetSessionFeedAfterClear(t *testing.T) {
	s := New()
	session := s.Session()
	if !s.SetSessionFeed(session, candidates("a")) {
		t.Fatal("feed for the current session not applied")
	}

	s.ClearSession()
	if s.SetSessionFeed(session, candidates("b", "c")) {
		t.Fatal("feed fetched before ClearSession was applied")
	}
	if got := feedIDs(s); len(got) != 0 {
		t.Fatalf("feed = %v, want empty", got)
	}

	if !s.SetSessionFeed(s.Session(), candidates("d")) {
		t.Fatal("feed for the new session not applied")
	}
}
