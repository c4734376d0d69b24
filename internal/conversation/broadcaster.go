// ABOUTME: Realtime fan-out of conversation events to connected subscribers
// ABOUTME: In-memory provider; the Broadcaster interface hides provider choice

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster publishes conversation events to realtime subscribers.
// Delivery is in-order per scope while a subscriber stays connected; nothing
// is retained across disconnects; clients resynchronize with a pull call.
type Broadcaster interface {
	Subscribe(ctx context.Context, scope string) (<-chan *Event, string)
	Publish(event *Event)
	Unsubscribe(scope, subID string)
	Close()
}

// MemoryBroadcaster is the in-process Broadcaster provider.
type MemoryBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // scope -> subID -> ch
	logger      *slog.Logger
}

// NewMemoryBroadcaster creates a broadcaster. Pass nil logger for default.
func NewMemoryBroadcaster(logger *slog.Logger) *MemoryBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given scope
// (conversation id or inbox id). Returns the receive channel and a
// subscription ID. The subscription is cleaned up when ctx is cancelled.
func (b *MemoryBroadcaster) Subscribe(ctx context.Context, scope string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[scope]; !ok {
		b.subscribers[scope] = make(map[string]chan *Event)
	}
	b.subscribers[scope][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "scope", scope, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(scope, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of its scope. Non-blocking:
// events are dropped for subscribers whose channels are full, preserving
// in-order delivery for everyone else.
func (b *MemoryBroadcaster) Publish(event *Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[event.Scope]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy channels under read lock to avoid holding it during sends
	targets := make([]chan *Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"scope", event.Scope,
				"type", event.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *MemoryBroadcaster) Unsubscribe(scope, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[scope]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, scope)
	}

	b.logger.Debug("subscriber removed", "scope", scope, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *MemoryBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for scope, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, scope)
	}

	b.logger.Debug("broadcaster closed")
}
