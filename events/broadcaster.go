// Package events fans out study group change notifications to in-process
// subscribers such as chat bridges or calendars. Delivery is synchronous,
// at-most-once and not persisted: a subscriber that is not registered at
// publish time never sees the event.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// GroupsUpdated is the name of the only event the broadcaster emits
const GroupsUpdated = "studyGroupsUpdated"

type Action string

const (
	ActionCreated Action = "created"
	ActionJoined  Action = "joined"
	ActionLeft    Action = "left"
	ActionDeleted Action = "deleted"
)

type Event struct {
	Name    string `json:"name"`
	Action  Action `json:"action"`
	GroupID string `json:"groupId"`
	// GroupName is captured before the change, so it survives a deletion
	GroupName string    `json:"groupName,omitempty"`
	UserID    string    `json:"userId"`
	At        time.Time `json:"at"`
}

type Handler func(Event)

type subscriber struct {
	id      uint64
	name    string
	handler Handler
}

type Broadcaster struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers []subscriber
	now         func() time.Time
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{now: time.Now}
}

// Subscription ends a subscriber's lifetime when closed
type Subscription struct {
	once        sync.Once
	broadcaster *Broadcaster
	id          uint64
}

// Subscribe registers a handler until the returned subscription is closed.
// The name only shows up in logs.
func (b *Broadcaster) Subscribe(name string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subscribers = append(b.subscribers, subscriber{id: b.nextID, name: name, handler: handler})

	slog.Debug("events: Subscriber registered", "subscriber", name, "total", len(b.subscribers))
	return &Subscription{broadcaster: b, id: b.nextID}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broadcaster.unsubscribe(s.id)
	})
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			slog.Debug("events: Subscriber removed", "subscriber", sub.name)
			return
		}
	}
}

// Publish delivers a change to every current subscriber, in registration order,
// before returning. A panicking subscriber is logged and skipped.
// Returns the number of subscribers that handled the event.
func (b *Broadcaster) Publish(action Action, groupID, groupName, userID string) int {
	event := Event{
		Name:      GroupsUpdated,
		Action:    action,
		GroupID:   groupID,
		GroupName: groupName,
		UserID:    userID,
		At:        b.now().UTC(),
	}

	b.mu.Lock()
	subscribers := make([]subscriber, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	delivered := 0
	for _, sub := range subscribers {
		if err := deliver(sub, event); err != nil {
			slog.Error("events: Subscriber failed", "error", err, "subscriber", sub.name, "action", string(action))
			continue
		}
		delivered++
	}

	slog.Info("events: Published", "event", GroupsUpdated, "action", string(action),
		"group_id", groupID, "user_id", userID, "delivered", delivered)
	return delivered
}

func deliver(sub subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sub.handler(event)
	return nil
}
