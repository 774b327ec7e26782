package notify

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shoplens/shoplens/internal/core"
)

// DefaultMaxNotifications bounds the event log when no limit is
// configured.
const DefaultMaxNotifications = 100

const persistKey = "notifications/log"

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type             core.EventType
	Topic            core.EventTopic
	UnreadOnly       bool
	IncludeDismissed bool
	Limit            int
}

// Notifier keeps a bounded, newest-first log of notification events and
// fans them out to subscribers. Threshold crossings, throttle errors, and
// plan changes all surface here instead of through injected callbacks.
type Notifier struct {
	mu     sync.RWMutex
	events []core.NotificationEvent
	max    int
	store  core.Persistence
	subs   map[int]chan core.NotificationEvent
	nextID int
	Clock  func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMaxNotifications overrides the log bound.
func WithMaxNotifications(max int) Option {
	return func(n *Notifier) {
		if max > 0 {
			n.max = max
		}
	}
}

// WithPersistence stores the log through the given port after every
// mutation and restores it on construction.
func WithPersistence(store core.Persistence) Option {
	return func(n *Notifier) {
		n.store = store
	}
}

// New returns a Notifier, restoring any persisted log.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		max:  DefaultMaxNotifications,
		subs: make(map[int]chan core.NotificationEvent),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.restore()
	return n
}

// Emit records a new event at the head of the log, trimming the oldest
// entries beyond the bound, and returns the stored event.
func (n *Notifier) Emit(eventType core.EventType, topic core.EventTopic, message string, details map[string]any) core.NotificationEvent {
	event := core.NotificationEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Topic:     topic,
		Message:   message,
		Timestamp: n.now(),
		Details:   details,
	}

	n.mu.Lock()
	n.events = append([]core.NotificationEvent{event}, n.events...)
	if len(n.events) > n.max {
		n.events = n.events[:n.max]
	}
	snapshot := n.snapshotLocked()
	for _, sub := range n.subs {
		select {
		case sub <- event:
		default:
			// Slow subscribers drop events rather than blocking Emit.
		}
	}
	n.mu.Unlock()

	n.persist(snapshot)
	return event
}

// Subscribe returns a channel receiving every subsequent event and a
// cancel function that closes it.
func (n *Notifier) Subscribe() (<-chan core.NotificationEvent, func()) {
	ch := make(chan core.NotificationEvent, 16)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// MarkRead marks the event with the given id as read.
func (n *Notifier) MarkRead(id string) bool {
	return n.update(id, func(event *core.NotificationEvent) {
		event.Read = true
	})
}

// Dismiss hides the event from default listings.
func (n *Notifier) Dismiss(id string) bool {
	return n.update(id, func(event *core.NotificationEvent) {
		event.Dismissed = true
	})
}

// List returns events newest first, filtered.
func (n *Notifier) List(filter Filter) []core.NotificationEvent {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]core.NotificationEvent, 0, len(n.events))
	for _, event := range n.events {
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if filter.Topic != "" && event.Topic != filter.Topic {
			continue
		}
		if filter.UnreadOnly && event.Read {
			continue
		}
		if !filter.IncludeDismissed && event.Dismissed {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// UnreadCount returns the number of unread, undismissed events.
func (n *Notifier) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	count := 0
	for _, event := range n.events {
		if !event.Read && !event.Dismissed {
			count++
		}
	}
	return count
}

// Clear drops the whole log.
func (n *Notifier) Clear() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()

	if n.store != nil {
		_ = n.store.Delete(persistKey)
	}
}

func (n *Notifier) update(id string, mutate func(*core.NotificationEvent)) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	var snapshot []core.NotificationEvent
	n.mu.Lock()
	for i := range n.events {
		if n.events[i].ID == id {
			mutate(&n.events[i])
			snapshot = n.snapshotLocked()
			break
		}
	}
	n.mu.Unlock()

	if snapshot == nil {
		return false
	}
	n.persist(snapshot)
	return true
}

// snapshotLocked copies the log so it can be marshaled after the lock is
// released; callers hold n.mu.
func (n *Notifier) snapshotLocked() []core.NotificationEvent {
	snapshot := make([]core.NotificationEvent, len(n.events))
	copy(snapshot, n.events)
	return snapshot
}

// persist saves a snapshot best-effort, outside the lock so a slow store
// never blocks emitters or readers.
func (n *Notifier) persist(snapshot []core.NotificationEvent) {
	if n.store == nil {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = n.store.Save(persistKey, payload)
}

func (n *Notifier) restore() {
	if n.store == nil {
		return
	}
	payload, err := n.store.Load(persistKey)
	if err != nil || len(payload) == 0 {
		return
	}
	var events []core.NotificationEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return
	}
	if len(events) > n.max {
		events = events[:n.max]
	}
	n.events = events
}

func (n *Notifier) now() time.Time {
	if n.Clock != nil {
		return n.Clock()
	}
	return time.Now().UTC()
}
