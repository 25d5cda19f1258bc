// Package pubsub provides a generic, topic-aware publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"
	// StreamEvent carries one outgoing protocol event of a running turn.
	StreamEvent EventType = "stream"
	// ArtifactEvent carries an artifact that was persisted by the caller.
	ArtifactEvent EventType = "artifact"
	// DoneEvent marks the end of a turn on a topic.
	DoneEvent EventType = "done"
)

// AllTopics subscribes to every topic.
const AllTopics = ""

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Topic     string
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events on a topic.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, topic string) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload on a topic.
type Publisher[T any] interface {
	Publish(topic string, eventType EventType, payload T)
}
