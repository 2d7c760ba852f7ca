package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/metrics"
)

// subscriberBuffer is the channel capacity granted to each subscriber. A
// subscriber that falls this far behind has its pending events dropped rather
// than stalling publishers.
const subscriberBuffer = 64

// Hub fans auction events out to topic subscribers. Publish never blocks:
// events for a slow subscriber are dropped and counted, and the subscriber
// is expected to re-read the auction to resynchronize.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscription]struct{}
	closed      bool
	logger      *zap.Logger
}

type subscription struct {
	topic string
	ch    chan auction.Event
	once  sync.Once
}

// NewHub creates an event hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscription]struct{}),
		logger:      logger,
	}
}

// Subscribe registers interest in a topic. The returned channel receives
// events published to that topic after this call returns. The unsubscribe
// function is idempotent and closes the channel.
func (h *Hub) Subscribe(topic string) (<-chan auction.Event, func()) {
	sub := &subscription{
		topic: topic,
		ch:    make(chan auction.Event, subscriberBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	subs, ok := h.subscribers[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.subscribers[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.EventSubscribers.Inc()

	return sub.ch, func() { h.unsubscribe(sub) }
}

func (h *Hub) unsubscribe(sub *subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[sub.topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subscribers, sub.topic)
			}
		}
		h.mu.Unlock()
		close(sub.ch)
		metrics.EventSubscribers.Dec()
	})
}

// Publish delivers an event to every subscriber of its auction topic.
// Delivery order is preserved per topic for subscribers that keep up.
func (h *Hub) Publish(event auction.Event) {
	topic := auction.Topic(event.AuctionID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for sub := range h.subscribers[topic] {
		select {
		case sub.ch <- event:
		default:
			metrics.EventsDroppedTotal.Inc()
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", topic),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID.String()))
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

// Close shuts the hub down and closes all subscriber channels. Publish and
// Subscribe become no-ops afterwards. The subscriptions are snapshotted and
// closed after releasing the hub lock: unsubscribe acquires it inside its
// sync.Once, so running the closes under the lock would deadlock against a
// concurrently unsubscribing client.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	var snapshot []*subscription
	for topic, subs := range h.subscribers {
		for sub := range subs {
			snapshot = append(snapshot, sub)
		}
		delete(h.subscribers, topic)
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		h.unsubscribe(sub)
	}
}
