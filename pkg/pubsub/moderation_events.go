package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

// EventTypeUserModerated is the event type attribute for moderation decisions.
const EventTypeUserModerated = "user.moderated"

// ModerationEvent is published after a moderation decision commits.
type ModerationEvent struct {
	EventID        uuid.UUID `json:"event_id"`
	TargetUserID   uuid.UUID `json:"target_user_id"`
	ExternalID     string    `json:"external_id"`
	ModeratorID    uuid.UUID `json:"moderator_id"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Version        int64     `json:"version"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// EventPublisher sends moderation events to a Pub/Sub topic.
type EventPublisher struct {
	publish publishFunc
}

// NewEventPublisher wraps a topic publisher.
func NewEventPublisher(publisher *pubsub.Publisher) (*EventPublisher, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &EventPublisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			id, err := publisher.Publish(ctx, msg).Get(ctx)
			if err != nil && msg.OrderingKey != "" {
				// A failed publish pauses its ordering key until resumed.
				publisher.ResumePublish(msg.OrderingKey)
			}
			return id, err
		},
	}, nil
}

// PublishModeration encodes and publishes event, waiting for the server ack.
func (p *EventPublisher) PublishModeration(ctx context.Context, event ModerationEvent) error {
	if p == nil || p.publish == nil {
		return errors.New("event publisher not configured")
	}
	msg, err := encodeModerationEvent(event)
	if err != nil {
		return err
	}
	if _, err := p.publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", EventTypeUserModerated, err)
	}
	return nil
}

func encodeModerationEvent(event ModerationEvent) (*pubsub.Message, error) {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal moderation event: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":    event.EventID.String(),
			"event_type":  EventTypeUserModerated,
			"external_id": event.ExternalID,
			"new_status":  event.NewStatus,
		},
		OrderingKey: event.TargetUserID.String(),
	}, nil
}
