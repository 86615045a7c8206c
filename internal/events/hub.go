// Package events is an in-memory pub/sub hub that fans session changes out
// to server-sent-event streams.
package events

import (
	"encoding/json"
	"sync"
)

const (
	TypeSessionUpdated       = "session.updated"
	TypeUploadProgress       = "upload.progress"
	TypeCompositionCompleted = "composition.completed"
	TypePlayerStatus         = "player.status"
)

// Event is one message on a topic. Data holds a JSON payload.
type Event struct {
	Type string
	Data string
}

// Publisher is the write side of a Hub.
type Publisher interface {
	Publish(topic string, event Event)
	PublishJSON(topic, eventType string, v interface{}) error
}

type Hub struct {
	mu      sync.Mutex
	clients map[string]map[chan Event]struct{}
	buffer  int
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[chan Event]struct{}),
		buffer:  32,
	}
}

// Subscribe registers a listener on topic. The returned function
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[chan Event]struct{})
	}
	h.clients[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients[topic], ch)
			if len(h.clients[topic]) == 0 {
				delete(h.clients, topic)
			}
			close(ch)
			h.mu.Unlock()
		})
	}

	return ch, unsub
}

// Publish delivers event to every subscriber of topic. Subscribers whose
// buffer is full miss the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishJSON marshals v and publishes it under the given event type.
func (h *Hub) PublishJSON(topic, eventType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(topic, Event{Type: eventType, Data: string(data)})
	return nil
}

// Subscribers returns the number of listeners on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[topic])
}
