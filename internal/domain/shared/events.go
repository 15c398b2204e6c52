// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types. Caches and metrics subscribe to these instead of
// polling the resolver.
const (
	// Session events
	EventSessionRestored  EventType = "session.restored"
	EventSignedIn         EventType = "session.signed_in"
	EventSignedOut        EventType = "session.signed_out"
	EventSignedUp         EventType = "session.signed_up"
	EventRoleDenied       EventType = "session.role_denied"
	EventSessionRefreshed EventType = "session.refreshed"
	EventOnboardingSeen   EventType = "session.onboarding_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionEvent covers every session transition. AggregateID is the user id,
// which is empty for the demo shortcut and for anonymous sign-outs.
type SessionEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Role    string `json:"role,omitempty"`
	Method  string `json:"method,omitempty"` // password, oauth, restore, demo
	Attempt uint64 `json:"attempt,omitempty"`
}

// Payload implements Event interface.
func (e SessionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"role":    e.Role,
		"method":  e.Method,
		"attempt": e.Attempt,
	}
}

// NewSessionEvent creates a new SessionEvent.
func NewSessionEvent(eventType EventType, userID, role, method string, attempt uint64) SessionEvent {
	return SessionEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		UserID:    userID,
		Role:      role,
		Method:    method,
		Attempt:   attempt,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
