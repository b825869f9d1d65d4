package models

import (
	"strings"
	"time"
)

// User represents a TechTribe profile as returned by the backend
type User struct {
	ID              string          `json:"_id"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"LastName"`
	ProfilePhotoURL string          `json:"profile,omitempty"`
	Age             int             `json:"age,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	About           string          `json:"about,omitempty"`
	Skills          []string        `json:"skills,omitempty"`
	Interests       []string        `json:"interests,omitempty"`
	Verifications   map[string]bool `json:"verifications,omitempty"`
}

// FullName joins first and last name
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Clone returns a deep copy of the user
func (u User) Clone() User {
	c := u
	if u.Skills != nil {
		c.Skills = append([]string(nil), u.Skills...)
	}
	if u.Interests != nil {
		c.Interests = append([]string(nil), u.Interests...)
	}
	if u.Verifications != nil {
		c.Verifications = make(map[string]bool, len(u.Verifications))
		for k, v := range u.Verifications {
			c.Verifications[k] = v
		}
	}
	return c
}

// FeedCandidate is a profile shown in the feed that the viewer has not acted on yet
type FeedCandidate = User

// Connection is a mutual match
type Connection = User

// RequestStatus is the state of a connection request
type RequestStatus string

const (
	RequestInterested RequestStatus = "interested"
	RequestSuperlike  RequestStatus = "superlike"
	RequestAccepted   RequestStatus = "accepted"
	RequestRejected   RequestStatus = "rejected"
)

// ConnectionRequest is an incoming request awaiting review
type ConnectionRequest struct {
	ID       string        `json:"_id"`
	FromUser User          `json:"fromUserId"`
	Status   RequestStatus `json:"status"`
}

// ChatMessage is one message in a conversation
type ChatMessage struct {
	SenderID        string    `json:"senderId"`
	SenderFirstName string    `json:"senderFirstName"`
	SenderLastName  string    `json:"senderLastName"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
}

// ProfileUpdate holds the editable profile fields; nil fields are not sent
type ProfileUpdate struct {
	FirstName       *string  `json:"firstName,omitempty"`
	LastName        *string  `json:"LastName,omitempty"`
	ProfilePhotoURL *string  `json:"profile,omitempty"`
	Age             *int     `json:"age,omitempty"`
	Gender          *string  `json:"gender,omitempty"`
	About           *string  `json:"about,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Interests       []string `json:"interests,omitempty"`
}
