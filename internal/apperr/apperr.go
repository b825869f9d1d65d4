// Package apperr classifies failures of calls made against the TechTribe backend.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of a failure
type Kind string

const (
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindQuota      Kind = "quota"
	KindServer     Kind = "server"
)

// Sentinels usable with errors.Is
var (
	ErrAuth          = &Error{Kind: KindAuth}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNetwork       = &Error{Kind: KindNetwork}
	ErrQuotaExceeded = &Error{Kind: KindQuota}
	ErrServer        = &Error{Kind: KindServer}
)

// GenericMessage is shown when the server gave no usable message
const GenericMessage = "Something went wrong! Please try again."

// Error is a classified failure
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns the text a front end should display
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindAuth:
		if e.Message != "" {
			return e.Message
		}
		return "Your session has ended. Please log in again."
	case KindValidation:
		if e.Message != "" {
			return e.Message
		}
		return GenericMessage
	case KindNetwork:
		return "Could not reach TechTribe. Check your connection and try again."
	case KindQuota:
		return "You're out of super-likes for now. Upgrade to send more!"
	default:
		return GenericMessage
	}
}

// Auth builds an authentication failure
func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: message}
}

// Network wraps a transport failure
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
}

// Quota builds a client-side rate limit failure
func Quota(message string) *Error {
	return &Error{Kind: KindQuota, Message: message}
}

// FromStatus classifies an HTTP error response
func FromStatus(status int, message string) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Status: status, Message: message}
	case status >= 400 && status < 500:
		return &Error{Kind: KindValidation, Status: status, Message: message}
	default:
		return &Error{Kind: KindServer, Status: status, Message: message}
	}
}

// KindOf returns the kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the displayable text for any error
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return GenericMessage
}
