package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrPushTokenUnregistered is returned by a PushSender when the device token is no longer valid.
var ErrPushTokenUnregistered = errors.New("push token unregistered")

type (
	PushMessage struct {
		Title string            `json:"title"`
		Body  string            `json:"body"`
		Data  map[string]string `json:"data,omitempty"`
	}

	// PushSender delivers push notifications to a single device token.
	PushSender interface {
		Send(ctx context.Context, token string, msg PushMessage) error
	}

	// Broadcaster pushes live messages to the connected clients of a user.
	Broadcaster interface {
		SendToUser(userID string, msg interface{})
	}

	Event struct {
		Key        string      `json:"event"` // eg. booking.confirmed
		EntityID   string      `json:"entity_id"`
		ActorID    string      `json:"actor_id,omitempty"`
		OccurredAt time.Time   `json:"occurred_at"`
		Data       interface{} `json:"data,omitempty"`
	}

	// EventPublisher publishes domain events to the event stream.
	EventPublisher interface {
		Publish(ctx context.Context, events ...Event) error
		Close() error
	}
)

// NewEvent returns an Event that occurred now.
func NewEvent(key, entityID, actorID string, data interface{}) Event {
	return Event{Key: key, EntityID: entityID, ActorID: actorID, OccurredAt: time.Now().UTC(), Data: data}
}

// noopPublisher drops every event; used when no broker is configured.
type noopPublisher struct{}

func NewNoopPublisher() EventPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, ...Event) error { return nil }
func (noopPublisher) Close() error                            { return nil }

// noopBroadcaster drops every message.
type noopBroadcaster struct{}

func NewNoopBroadcaster() Broadcaster { return noopBroadcaster{} }

func (noopBroadcaster) SendToUser(string, interface{}) {}
