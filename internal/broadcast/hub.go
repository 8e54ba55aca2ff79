// Package broadcast implements the real-time dashboard hub: a topic-keyed
// publish/subscribe registry of websocket connections. Topics are channel
// names ("controller", "frontend"); subscribers attached to a topic receive
// every message broadcast to it, and the ingestion pipeline broadcasts its
// datapoint batches to "frontend" (§4.C).
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stefanposs/webmacs/infrastructure/logging"
)

const writeTimeout = 5 * time.Second

// Subscriber is one attached websocket connection.
type Subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSubscriber(conn *websocket.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

func (s *Subscriber) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is the process-wide registry of topic -> subscribers. A single mutex
// guards the whole map; broadcast volume (one message per datapoint batch)
// is low enough that per-topic locks would be premature.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscriber]struct{}
	logger *logging.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewFromEnv("broadcast")
	}
	return &Hub{topics: make(map[string]map[*Subscriber]struct{}), logger: logger}
}

// Attach registers conn as a subscriber of topic and returns a handle used
// to Detach it later.
func (h *Hub) Attach(topic string, conn *websocket.Conn) *Subscriber {
	sub := newSubscriber(conn)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	return sub
}

// Detach removes a subscriber from a topic and closes its connection.
func (h *Hub) Detach(topic string, sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
	_ = sub.conn.Close()
}

// SubscriberCount returns the number of subscribers attached to topic, as
// reported in the runtime's stats.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Broadcast sends payload to every subscriber of topic. It snapshots the
// subscriber set under the lock, sends outside it, and prunes any
// subscriber whose write failed.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	h.mu.Lock()
	subs := h.topics[topic]
	snapshot := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Warn("broadcast payload marshal failed")
		return
	}

	var dead []*Subscriber
	for _, sub := range snapshot {
		if err := sub.send(raw); err != nil {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.Detach(topic, sub)
	}
}

// TopicCount returns the number of distinct topics with at least one
// subscriber, used in health/stats reporting.
func (h *Hub) TopicCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}
