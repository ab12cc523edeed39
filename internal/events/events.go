// Package events carries fire-and-forget notifications from the integration lifecycle
// to the views that render playlists, recommendations and the playback status.
//
// Publishers never wait for a reply. Handlers run synchronously on the publishing
// goroutine in subscription order and must not block.
package events

import "sync"

// Topic names a kind of notification.
type Topic string

const (
	TopicRefreshPlaylists       Topic = "refresh-playlists"
	TopicRefreshRecommendations Topic = "refresh-recommendations"
	TopicSyncPlaybackStatus     Topic = "sync-playback-status"
)

// Event is a single notification. Running is meaningful for [TopicSyncPlaybackStatus] only.
type Event struct {
	Topic   Topic
	Running bool
}

// Handler consumes events for a topic.
type Handler func(Event)

// Publisher is the write side of a [Bus].
type Publisher interface {
	Publish(Event)
}

// Bus is an in-process topic bus.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Topic]map[int]Handler
	order    map[Topic][]int
}

// NewBus creates an empty [Bus].
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Topic]map[int]Handler),
		order:    make(map[Topic][]int),
	}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	b.handlers[topic][id] = h
	b.order[topic] = append(b.order[topic], id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[topic], id)
		})
	}
}

// Publish delivers e to every current subscriber of e.Topic.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	var targets []Handler
	for _, id := range b.order[e.Topic] {
		if h, ok := b.handlers[e.Topic][id]; ok {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(e)
	}
}
