package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

type subscription[T any] struct {
	topic string
	ch    chan Event[T]
}

// Broker is a generic pub/sub event broker.
// Subscribers pick a topic (a session id, for example) or AllTopics.
type Broker[T any] struct {
	subs       map[*subscription[T]]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
	}
}

// Subscribe creates a new subscription channel for topic.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, topic string) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := &subscription[T]{topic: topic, ch: make(chan Event[T], b.bufferSize)}
	b.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}

		delete(b.subs, sub)
		close(sub.ch)
	}()

	return sub.ch
}

// Publish sends an event to every subscriber of topic and of AllTopics.
// Non-blocking: drops events for subscribers whose buffer is full.
func (b *Broker[T]) Publish(topic string, eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{
		Type:      eventType,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for sub := range b.subs {
		if sub.topic != AllTopics && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
