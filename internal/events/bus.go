// Package events carries platform messages (push notifications, sync
// prompts) to in-process subscribers. It decouples how messages arrive
// from how the notification log and the coordinator consume them.
package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// MessageType identifies the shape of a platform message.
type MessageType string

const (
	// TypePushNotification carries a notification payload for the log.
	TypePushNotification MessageType = "PUSH_NOTIFICATION"

	// TypeSyncNotificationLog prompts subscribers to refresh from the store.
	TypeSyncNotificationLog MessageType = "SYNC_NOTIFICATION_LOG"
)

// Message is one delivered platform message.
type Message struct {
	Type    MessageType
	Payload map[string]any
}

// Handler consumes a message. Handlers run synchronously on the
// publisher's goroutine; panics are contained per handler.
type Handler func(ctx context.Context, msg Message)

type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an in-memory pub/sub for platform messages. Dispatch is
// synchronous so that by the time Publish returns, every subscriber has
// observed the message; duplicate deliveries are the subscribers' problem
// and all of them persist idempotently.
type Bus struct {
	mu     sync.RWMutex
	topics map[MessageType][]subscriber
	nextID atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{topics: make(map[MessageType][]subscriber)}
}

// Subscribe registers a handler for the message type and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(t MessageType, h Handler) SubscriptionID {
	id := SubscriptionID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[t] = append(b.topics[t], subscriber{id: id, handler: h})
	return id
}

// Unsubscribe removes the handler registered under id. Unknown ids are a
// no-op.
func (b *Bus) Unsubscribe(t MessageType, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[t]
	for i, s := range subs {
		if s.id == id {
			b.topics[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the message to every subscriber of its type.
func (b *Bus) Publish(ctx context.Context, msg Message) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[msg.Type]))
	copy(subs, b.topics[msg.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() { _ = recover() }()
			s.handler(ctx, msg)
		}()
	}
}
