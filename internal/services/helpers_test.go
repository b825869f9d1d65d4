package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"techtribe-client/internal/devserver"
	"techtribe-client/internal/models"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/repository"
	"techtribe-client/internal/store"
)

const testSecret = "test-secret"

// recorder logs every request reaching the backend
type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	Method string
	Path   string
	Auth   string
}

func (r *recorder) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.calls = append(r.calls, recordedCall{Method: req.Method, Path: req.URL.Path, Auth: req.Header.Get("Authorization")})
		r.mu.Unlock()
		next.ServeHTTP(w, req)
	})
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return recordedCall{}
	}
	return r.calls[len(r.calls)-1]
}

// testEnv is a client wired to a development backend
type testEnv struct {
	backend  *devserver.Server
	server   *httptest.Server
	rec      *recorder
	kv       *repository.MemoryStore
	store    *store.Store
	events   *notify.ChanSink
	sessions *SessionManager
}

// newTestEnv starts a backend. middleware, when non-nil, runs in front of the backend handler.
func newTestEnv(t *testing.T, opts devserver.Options, middleware func(http.Handler) http.Handler) *testEnv {
	t.Helper()

	backend := devserver.New(testSecret, opts)
	rec := &recorder{}
	var h http.Handler = backend.Handler()
	if middleware != nil {
		h = middleware(h)
	}
	server := httptest.NewServer(rec.wrap(h))
	t.Cleanup(server.Close)

	kv := repository.NewMemoryStore()
	st := store.New()
	events := notify.NewChanSink(64)
	sessions := NewSessionManager(server.URL, 5*time.Second, kv, st, notify.NewDispatcher(events))

	return &testEnv{
		backend:  backend,
		server:   server,
		rec:      rec,
		kv:       kv,
		store:    st,
		events:   events,
		sessions: sessions,
	}
}

func (e *testEnv) seed(t *testing.T, u models.User) models.User {
	t.Helper()
	out, err := e.backend.Seed(u, u.ID+"@techtribe.test", "password")
	if err != nil {
		t.Fatalf("seed %s: %v", u.ID, err)
	}
	return out
}

// login authenticates as a seeded user
func (e *testEnv) login(t *testing.T, id string) *Session {
	t.Helper()
	s, err := e.sessions.Login(context.Background(), Credentials{Email: id + "@techtribe.test", Password: "password"})
	if err != nil {
		t.Fatalf("login %s: %v", id, err)
	}
	return s
}

// clientFor builds a second, independent client session against the same backend
func (e *testEnv) clientFor(t *testing.T, id string) (*SessionManager, *store.Store) {
	t.Helper()
	st := store.New()
	sm := NewSessionManager(e.server.URL, 5*time.Second, repository.NewMemoryStore(), st, notify.NewDispatcher())
	if _, err := sm.Login(context.Background(), Credentials{Email: id + "@techtribe.test", Password: "password"}); err != nil {
		t.Fatalf("login %s: %v", id, err)
	}
	return sm, st
}

// drain returns the events published so far
func drain(s *notify.ChanSink) []notify.Event {
	var out []notify.Event
	for {
		select {
		case e := <-s.C:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countKind(events []notify.Event, k notify.Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// fakeAPI is an in-process Requester
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	handle func(ctx context.Context, method, path string) (interface{}, error)
}

func (f *fakeAPI) Do(ctx context.Context, method, path string, body, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+path)
	f.mu.Unlock()

	resp, err := f.handle(ctx, method, path)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func makeCandidates(n int) []models.User {
	out := make([]models.User, n)
	for i := range out {
		out[i] = models.User{
			ID:        fmt.Sprintf("c%d", i),
			FirstName: fmt.Sprintf("Dev%d", i),
			LastName:  "Coder",
			Age:       20 + i,
			Skills:    []string{"Go"},
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
