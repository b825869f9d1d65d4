package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusNotFound, ErrValidation},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
	}
	for _, tt := range tests {
		err := FromStatus(tt.status, "")
		if !errors.Is(err, tt.want) {
			t.Errorf("FromStatus(%d) = %v, want kind of %v", tt.status, err, tt.want)
		}
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to fetch feed: %w", Network(errors.New("connection refused")))
	if !errors.Is(err, ErrNetwork) {
		t.Error("wrapped network error not matched")
	}
	if errors.Is(err, ErrServer) {
		t.Error("network error matched server kind")
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error classified")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{FromStatus(http.StatusBadRequest, "Invalid credentials"), "Invalid credentials"},
		{FromStatus(http.StatusBadRequest, ""), GenericMessage},
		{FromStatus(http.StatusInternalServerError, "stack trace"), GenericMessage},
		{Auth(""), "Your session has ended. Please log in again."},
		{Auth("Invalid credentials"), "Invalid credentials"},
		{Quota("budget"), "You're out of super-likes for now. Upgrade to send more!"},
		{Network(errors.New("x")), "Could not reach TechTribe. Check your connection and try again."},
		{errors.New("plain"), GenericMessage},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
