/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventPlacementMoved fires once per job whose placement a cascade or move changed.
	EventPlacementMoved EventType = "placement.moved"
	// EventCascadeCompleted fires after a cascade transaction commits.
	EventCascadeCompleted EventType = "cascade.completed"
	// EventConflictDetected fires when a requested placement had to be moved.
	EventConflictDetected EventType = "conflict.detected"
	// EventCalendarUpdated fires when a calendar day's capacity changes.
	EventCalendarUpdated EventType = "calendar.updated"
)

// AllEventTypes lists every event type the engine publishes.
var AllEventTypes = []EventType{
	EventPlacementMoved,
	EventCascadeCompleted,
	EventConflictDetected,
	EventCalendarUpdated,
}

// Payload generic event payload.
type Payload map[string]any

// OriginNodeKey is set on payloads relayed from another instance to the id of the
// instance that published them.
const OriginNodeKey = "origin_node"

// Remote reports whether the payload was relayed from another instance.
func (p Payload) Remote() bool {
	_, ok := p[OriginNodeKey]
	return ok
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the publishing side of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers without blocking; slow subscribers miss events.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends never block, so holding the read lock keeps Unsubscribe from closing a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
