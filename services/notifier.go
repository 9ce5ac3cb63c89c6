// services/notifier.go
package services

import (
	"fmt"
	"sync"
	"time"

	"bounty-service/models"

	"github.com/google/uuid"
)

// Event types broadcast to online participants.
const (
	EventBountyPlaced  = "bounty_placed"
	EventBountyRemoved = "bounty_removed"
	EventBountyClaimed = "bounty_claimed"
	EventBountyExpired = "bounty_expired"
)

// BountyEvent is a fire-and-forget broadcast message.
type BountyEvent struct {
	Type    string        `json:"type"`
	Bounty  models.Bounty `json:"bounty"`
	Actor   string        `json:"actor,omitempty"` // hunter on claim, remover on remove
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

// Notifier is the notification sink. Delivery is best effort; Broadcast
// must never block the caller.
type Notifier interface {
	Broadcast(event BountyEvent)
}

// EventBroadcaster fans bounty events out to SSE subscribers. Slow consumers
// lose events rather than stalling the manager or a timer callback.
type EventBroadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan BountyEvent
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs: make(map[uuid.UUID]chan BountyEvent),
	}
}

// Subscribe registers a new consumer and returns its id and event channel.
func (b *EventBroadcaster) Subscribe() (uuid.UUID, <-chan BountyEvent) {
	ch := make(chan BountyEvent, 16)

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe drops the consumer. Idempotent.
func (b *EventBroadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast delivers the event to every subscriber without blocking.
func (b *EventBroadcaster) Broadcast(event BountyEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop for this consumer.
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// PlacedEvent builds the broadcast payload for a freshly placed bounty.
func PlacedEvent(bounty models.Bounty) BountyEvent {
	return BountyEvent{
		Type:    EventBountyPlaced,
		Bounty:  bounty,
		Actor:   bounty.Placer,
		Message: fmt.Sprintf("%s has placed a bounty on %s for $%.2f", bounty.Placer, bounty.Target, bounty.Reward),
		At:      time.Now().UTC(),
	}
}

// RemovedEvent builds the broadcast payload for a removed bounty.
func RemovedEvent(bounty models.Bounty, remover string) BountyEvent {
	return BountyEvent{
		Type:    EventBountyRemoved,
		Bounty:  bounty,
		Actor:   remover,
		Message: fmt.Sprintf("The bounty on %s has been removed", bounty.Target),
		At:      time.Now().UTC(),
	}
}

// ClaimedEvent builds the broadcast payload for a claimed bounty.
func ClaimedEvent(bounty models.Bounty, hunter string) BountyEvent {
	return BountyEvent{
		Type:    EventBountyClaimed,
		Bounty:  bounty,
		Actor:   hunter,
		Message: fmt.Sprintf("%s has claimed the $%.2f bounty on %s", hunter, bounty.Reward, bounty.Target),
		At:      time.Now().UTC(),
	}
}

// ExpiredEvent builds the broadcast payload for an expired bounty.
func ExpiredEvent(bounty models.Bounty) BountyEvent {
	return BountyEvent{
		Type:    EventBountyExpired,
		Bounty:  bounty,
		Message: fmt.Sprintf("The bounty on %s has expired unclaimed", bounty.Target),
		At:      time.Now().UTC(),
	}
}
