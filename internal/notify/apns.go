package notify

import (
	"context"
	"fmt"

	"techtribe-client/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsSink relays match, message and request events to one Apple device
type APNsSink struct {
	client      pusher
	topic       string
	deviceToken string
}

// NewAPNsSink builds a token-authenticated APNs client from configuration
func NewAPNsSink(cfg config.APNsConfig) (*APNsSink, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsSink{
		client:      client,
		topic:       cfg.Topic,
		deviceToken: cfg.DeviceToken,
	}, nil
}

func (s *APNsSink) Notify(ctx context.Context, e Event) error {
	switch e.Kind {
	case KindMatch, KindMessage, KindConnectionRequest:
	default:
		return nil
	}

	n := &apns2.Notification{
		DeviceToken: s.deviceToken,
		Topic:       s.topic,
		Payload: payload.NewPayload().
			AlertTitle("TechTribe").
			AlertBody(e.Text()).
			Sound("default").
			Custom("kind", string(e.Kind)).
			Custom("user_id", e.UserID),
	}

	res, err := s.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().
		Str("apns_id", res.ApnsID).
		Str("kind", string(e.Kind)).
		Msg("Push notification sent")

	return nil
}
