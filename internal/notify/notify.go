// Package notify fans out client events (matches, messages, session changes) to
// front ends and push relays.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind identifies an event
type Kind string

const (
	KindMatch             Kind = "match"
	KindMessage           Kind = "message"
	KindConnectionRequest Kind = "connection_request"
	KindNavigateLogin     Kind = "navigate_login"
	KindError             Kind = "error"
	KindChatStatus        Kind = "chat_status"
)

// Event is something a front end may want to show
type Event struct {
	Kind     Kind
	UserID   string
	UserName string
	Message  string
	Err      error
	Time     time.Time
}

// Text renders the event for display
func (e Event) Text() string {
	switch e.Kind {
	case KindMatch:
		return fmt.Sprintf("It's a match! %s also likes you!", e.UserName)
	case KindMessage:
		return fmt.Sprintf("%s sent you a message", e.UserName)
	case KindConnectionRequest:
		return fmt.Sprintf("%s wants to connect", e.UserName)
	case KindNavigateLogin:
		return "Please log in to continue"
	default:
		if e.Message != "" {
			return e.Message
		}
		return "New notification"
	}
}

// Sink receives published events
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Dispatcher delivers each event to every registered sink, in registration order
type Dispatcher struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewDispatcher creates a dispatcher with the given sinks
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Add registers another sink
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Publish delivers e synchronously; sink failures are logged, never returned
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Notify(ctx, e); err != nil {
			log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("Failed to deliver notification")
		}
	}
}

// LogSink writes events to the global logger
type LogSink struct{}

func (LogSink) Notify(_ context.Context, e Event) error {
	ev := log.Info()
	if e.Kind == KindError {
		ev = log.Warn().Err(e.Err)
	}
	ev.Str("kind", string(e.Kind)).Str("user_id", e.UserID).Msg(e.Text())
	return nil
}

// ChanSink buffers events for a front end loop. Events are dropped when the buffer is full.
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a sink with the given buffer size
func NewChanSink(size int) *ChanSink {
	return &ChanSink{C: make(chan Event, size)}
}

func (s *ChanSink) Notify(_ context.Context, e Event) error {
	select {
	case s.C <- e:
		return nil
	default:
		return fmt.Errorf("event buffer full, dropped %s", e.Kind)
	}
}
