// Package events provides an in-process pub/sub bus for routing events and
// the SSE feed behind the admin events endpoint.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventRouteSuccess      EventType = "route_success"
	EventRouteError        EventType = "route_error"
	EventFallbackUsed      EventType = "fallback_used"
	EventCandidateCooldown EventType = "candidate_cooldown"
	EventStatePruned       EventType = "state_pruned"
	EventConfigReloaded    EventType = "config_reloaded"
)

// Event is a single routing event published on the bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Routing fields (populated for route events).
	RequestedModel string  `json:"requested_model,omitempty"`
	ModelID        string  `json:"model_id,omitempty"`
	ProviderID     string  `json:"provider_id,omitempty"`
	RouteType      string  `json:"route_type,omitempty"`
	RouteRef       string  `json:"route_ref,omitempty"`
	Strategy       string  `json:"strategy,omitempty"`
	SourceFormat   string  `json:"source_format,omitempty"`
	TargetFormat   string  `json:"target_format,omitempty"`
	Stream         bool    `json:"stream,omitempty"`
	Attempts       int     `json:"attempts,omitempty"`
	LatencyMs      float64 `json:"latency_ms,omitempty"`

	// Failure fields (populated for route_error and cooldown events).
	StatusCode int    `json:"status_code,omitempty"`
	Category   string `json:"category,omitempty"`
	Reason     string `json:"reason,omitempty"`
	CooldownMs int64  `json:"cooldown_ms,omitempty"`

	// Maintenance fields.
	PrunedEntries int `json:"pruned_entries,omitempty"`
}

// JSON returns the event as a JSON byte slice.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus is an in-memory pub/sub event bus for routing events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{
		C:    make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- e:
		default:
			// Drop event if subscriber is slow (back-pressure).
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
