package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/restful-users/apiserver/types"
)

type UserEventType string

const (
	UserCreated UserEventType = "user.created"
	UserUpdated UserEventType = "user.updated"
	UserDeleted UserEventType = "user.deleted"
)

const (
	attrEventType = "event_type"
	attrOrigin    = "origin"
)

// UserEvent announces a committed change to one user.
type UserEvent struct {
	Type       UserEventType `json:"type"`
	UserID     int64         `json:"userId"`
	Username   string        `json:"username"`
	Origin     string        `json:"origin"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// UserEvents publishes and consumes UserEvent values on one channel.
// Origin identifies the publishing process so subscribers can skip their
// own events.
type UserEvents struct {
	mq      *MQ
	channel string
	origin  string
	now     func() time.Time
}

func NewUserEvents(m *MQ, channel, origin string) *UserEvents {
	return &UserEvents{mq: m, channel: channel, origin: origin, now: time.Now}
}

func (e *UserEvents) Origin() string {
	return e.origin
}

func (e *UserEvents) Channel() string {
	return e.channel
}

// Publish encodes and sends one event for user.
func (e *UserEvents) Publish(ctx context.Context, eventType UserEventType, user types.User) error {
	event := UserEvent{
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		Origin:     e.origin,
		OccurredAt: e.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode user event: %w", err)
	}

	attrs := map[string]string{
		attrEventType: string(eventType),
		attrOrigin:    e.origin,
	}
	if _, err := e.mq.Publish(ctx, e.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Subscribe decodes events and passes them to handler until ctx is done.
// Undecodable payloads are acknowledged and skipped.
func (e *UserEvents) Subscribe(ctx context.Context, handler func(ctx context.Context, event UserEvent) error) error {
	return e.mq.Subscribe(ctx, e.channel, func(ctx context.Context, msg Message) error {
		var event UserEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return handler(ctx, event)
	})
}
