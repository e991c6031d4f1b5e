package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds published on the hub.
const (
	KindFileUpdate    = "file_update"
	KindNotification  = "notification"
	KindLinkGenerated = "link_generated"
	KindLinkDeleted   = "link_deleted"
)

// Topic builders. One topic namespace per concern; the hub is the single
// publish path for all of them.
func TopicNotifications(userID string) string     { return "notifications:" + userID }
func TopicUserFiles(userID string) string         { return "files:user:" + userID }
func TopicLinkFiles(linkID uuid.UUID) string      { return "files:link:" + linkID.String() }
func TopicWorkspace(workspaceID uuid.UUID) string { return "workspace-" + workspaceID.String() }

// Event is one realtime message on a topic.
type Event struct {
	Topic   string         `json:"topic"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking publishers.
const subscriberBuffer = 32

type subscriber struct {
	ch     chan Event
	topics map[string]bool
}

// Hub is an in-process publish/subscribe event bus. Publishing never
// blocks: events to a full subscriber are dropped with a warning, since
// realtime updates are a UX enhancement, not data-integrity-critical.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]*subscriber)}
}

// Publish delivers the event to every subscriber of its topic.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		if !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("dropping realtime event for slow subscriber",
				"subscriber", id, "topic", ev.Topic, "kind", ev.Kind)
		}
	}
}

// Subscribe registers interest in a set of topics. The returned cancel
// func must be called when the subscriber goes away; it unsubscribes and
// closes the channel.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}

	sub := &subscriber{
		ch:     make(chan Event, subscriberBuffer),
		topics: topicSet,
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
